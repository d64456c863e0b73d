package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// Chat connects a text session and alternates between reading one line from
// the console and printing the model's reply. Tool calls inside a reply are
// dispatched before the rest of the reply is read. Chat returns nil on a quit
// sentinel, at end of input or when ctx is cancelled.
func (o *Orchestrator) Chat(ctx context.Context) error {
	sess, err := o.connect(ctx, s2s.ModalityText)
	if err != nil {
		return err
	}
	defer o.close(sess)

	input := newLineReader(o.cfg.Input)
	defer input.stop()

	o.setState(StateRunning)
	defer o.setState(StateDraining)

	o.out.note("Type a message and press enter, or q to quit.")
	for {
		o.out.prompt("You:")
		line, err := input.next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}
		if IsQuit(line) {
			o.log.Info("quit requested")
			return nil
		}
		if line == "" {
			line = emptyLine
		}

		if err := sess.SendText(ctx, line, true); err != nil {
			return fmt.Errorf("orchestrator: send text: %w", err)
		}
		if err := o.turn(ctx, sess, nil); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
