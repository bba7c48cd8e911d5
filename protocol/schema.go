package protocol

import (
	"github.com/invopop/jsonschema"
)

// Schema 生成整个协议（入站命令、出站事件、状态快照）的 JSON Schema
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}

	defs := jsonschema.Definitions{}
	add := func(name, desc string, v any) *jsonschema.Schema {
		s := r.Reflect(v)
		s.Version = ""
		s.Title = name
		s.Description = desc
		defs[name] = s
		return s
	}

	var commands, events, internal []*jsonschema.Schema
	commands = append(commands,
		add(TypeCreateOrJoinRoom, "Create a room on first reference or join an existing one.", &CreateOrJoinRoom{}),
		add(TypeUpdateScene, "Report the scene the player's client is showing.", &UpdateScene{}),
		add(TypeStartGame, "Start the match. Ignored unless the room is ready.", &StartGame{}),
		add(TypeInput, "Turn command for the player bound to this connection.", &Input{}),
		add(TypeLeaveRoom, "Leave the room.", &LeaveRoom{}),
	)
	events = append(events,
		add(TypeJoined, "A player joined or rebound to the room.", &Joined{}),
		add(TypeLeft, "A player left the room.", &Left{}),
		add(TypeState, "Full room state, broadcast every tick while running.", &State{}),
		add(TypeGameStarted, "The match started.", &GameStarted{}),
		add(TypeGameFinished, "The match finished.", &GameFinished{}),
		add(TypeRoomClosed, "The room was closed.", &RoomClosed{}),
		add(TypeRoomCreated, "Reply to create_room on /internal.", &RoomCreated{}),
		add(TypeError, "A command from this connection failed.", &Error{}),
	)
	internal = append(internal,
		add("internal."+TypeCreateRoom, "Create a room with a fixed roster. Fails if the room exists.", &CreateRoom{}),
		add("internal."+TypeInput, "Turn command on behalf of a roster player.", &RoomInput{}),
		add("internal."+TypeCloseRoom, "Close a room.", &CloseRoom{}),
	)
	add("snapshot", "Room state snapshot carried by state events.", &Snapshot{})

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "trailarena protocol",
		Description: "Messages exchanged over /ws and /internal. Every message is an object tagged by its type field and may carry the protocol version v.",
		Definitions: defs,
		AnyOf: []*jsonschema.Schema{
			{Title: "commands", OneOf: commands},
			{Title: "events", OneOf: events},
			{Title: "internal commands", OneOf: internal},
		},
	}
}
