// Package protocol 定义客户端与房间服务之间的消息：入站命令、出站事件、状态快照，
// 以及 JSON / msgpack 两种编码。
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec 线上编码
type Codec interface {
	Name() string
	// Binary 为 true 时应以二进制帧发送
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	// JSON 文本编码（默认）
	JSON Codec = jsonCodec{}
	// MsgPack 二进制编码，字段名与 JSON 一致
	MsgPack Codec = msgpackCodec{}
)

// ErrUnknownCodec 不支持的编码名
var ErrUnknownCodec = errors.New("unknown codec")

// CodecByName 按名称选择编码，空串为 JSON
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "msgpack", "messagepack":
		return MsgPack, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, errors.Wrap(err, "json encode")
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return errors.Wrap(json.Unmarshal(data, v), "json decode")
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	// map 键排序，保证同一快照编码结果一致
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "msgpack encode")
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return errors.Wrap(dec.Decode(v), "msgpack decode")
}
