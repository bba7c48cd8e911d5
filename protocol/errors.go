package protocol

import "github.com/pkg/errors"

// ProtocolVersion 当前协议版本；入站消息的 v 缺省或为 0 时按当前版本处理
const ProtocolVersion = 1

// ErrUnsupportedVersion 消息声明的协议版本不受支持
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

// 错误码
const (
	CodeInvalidMessage     = "invalid_message"
	CodeUnknownType        = "unknown_type"
	CodeUnsupportedVersion = "unsupported_version"
	CodeInternal           = "internal_error"
)

// CodeOf 协议层错误对应的错误码，其他错误归为 internal_error
func CodeOf(err error) string {
	switch {
	case err == nil:
		return CodeInternal
	case errors.Is(err, ErrUnsupportedVersion):
		return CodeUnsupportedVersion
	case errors.Is(err, ErrUnknownType):
		return CodeUnknownType
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidMessage
	default:
		return CodeInternal
	}
}

func checkVersion(v int) error {
	if v != 0 && v != ProtocolVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "v=%d", v)
	}
	return nil
}
