package turtle

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/intent"
)

// Command words understood by the turtle firmware.
const (
	CmdSit   = "sit"
	CmdGreet = "greet"
	CmdStop  = "stop"
	CmdMove  = "move"
	CmdBack  = "back"
	CmdTurn  = "turn"
	CmdPing  = "ping"
)

// Encode renders an intent as a command line, without the terminator. dir is the heading the
// command is issued under; for turns it is the heading after the turn.
func Encode(i intent.Intent, dir heading.Direction) (string, error) {
	if !dir.Valid() {
		return "", errors.Errorf("invalid heading %d", int(dir))
	}
	switch i {
	case intent.Sit:
		return CmdSit, nil
	case intent.Greet:
		return CmdGreet, nil
	case intent.Stop:
		return CmdStop, nil
	case intent.Move, intent.Forward:
		v := heading.Displacement(dir)
		return fmt.Sprintf("%s %d %d", CmdMove, v.X, v.Y), nil
	case intent.Backward:
		v := heading.Displacement(dir)
		return fmt.Sprintf("%s %d %d", CmdBack, -v.X, -v.Y), nil
	case intent.TurnLeft:
		return fmt.Sprintf("%s l %s", CmdTurn, dir), nil
	case intent.TurnRight:
		return fmt.Sprintf("%s r %s", CmdTurn, dir), nil
	case intent.Unknown:
	}
	return "", errors.Errorf("cannot encode intent %v", i)
}

func validatePayload(payload string) error {
	if payload == "" {
		return errors.New("empty command")
	}
	if len(payload) > MaxLineLength {
		return errors.Errorf("command longer than %d bytes", MaxLineLength)
	}
	if strings.ContainsAny(payload, "\r\n") {
		return errors.New("command cannot contain line terminators")
	}
	return nil
}
