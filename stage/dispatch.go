package stage

import (
	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/protocol"
)

// run applies channel and readiness policy to a matched command and calls its handler
func (c *Context) run(m command.Match, seat int, public bool) protocol.Outcome {
	reply := c.replyTo(seat, public)
	defer reply.Flush()

	cmd := m.Command
	if !cmd.Channel.Allows(public) {
		if cmd.Channel == command.PublicOnly {
			reply.Text("This command can only be used in the group channel.")
		} else {
			reply.Text("This command can only be used in a private message.")
		}
		return protocol.Failed
	}

	if cmd.UnreadyOnly && c.masker.IsReady(seat) {
		reply.Text("You have already acted in this stage.")
		return protocol.Failed
	}

	return cmd.Handler(command.Call{
		Seat:   seat,
		Public: public,
		Reply:  reply,
		Args:   m.Args,
	})
}

func (c *Context) replyUsage(seat int, public bool, cmds []command.Command) {
	reply := c.replyTo(seat, public)
	reply.Text("Usage:")
	for _, cmd := range cmds {
		reply.Text("\n  %s", cmd.Usage())
	}
	reply.Flush()
}
