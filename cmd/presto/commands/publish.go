package commands

import (
	"context"
	"os/signal"
	"syscall"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	PublishFlags `embed:""`
}

func (p *PublishCmd) Run(g *Global, root *CLI) error {
	s, err := openSession(g, root, p.PublishFlags)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := s.run(ctx); err != nil && !interrupted(err) {
		return err
	}
	return nil
}
