package forwarder

import (
	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
)

// Register attaches the pipeline to the client's update dispatcher. The debug
// command is registered first so it can stop propagation to the forwarding
// handler.
func (p *Pipeline) Register(client *gotgproto.Client) {
	client.Dispatcher.AddHandler(handlers.NewCommand("debugtopic", p.debugTopic))
	client.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.All, p.handleNewMessage))
	p.log.Info().Msg("pipeline: message event handler registered")
}

func (p *Pipeline) handleNewMessage(ctx *ext.Context, update *ext.Update) error {
	msg := update.EffectiveMessage
	if msg == nil || msg.Message == nil {
		return nil
	}

	p.Process(ctx, msg.Message)
	return nil
}
