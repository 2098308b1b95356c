package poll

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/parseengine"
)

const sshDialTimeout = 5 * time.Second
const sshCommandTimeout = 10 * time.Second

// pollSSH implements method=ssh from §4.7: one non-interactive exec
// session per command, stdout captured and fed to the manifest's parser block.
func (d *Driver) pollSSH(ctx context.Context, target *models.Target, addon *models.Manifest) {
	if addon.SSH == nil {
		return
	}

	creds, err := d.creds.Resolve(ctx, target.IPAddress, "ssh")
	if err != nil {
		log.Warn().Err(err).Str("target_id", target.ID).Msg("poll: ssh credential resolution failed")
		return
	}

	config := &ssh.ClientConfig{
		User:            creds["username"],
		Auth:            []ssh.AuthMethod{ssh.Password(creds["password"])},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // polled devices rarely offer a known-hosts workflow
		Timeout:         sshDialTimeout,
	}

	client, err := ssh.Dial("tcp", target.IPAddress+":22", config)
	if err != nil {
		log.Debug().Err(err).Str("target_id", target.ID).Msg("poll: ssh dial failed")
		return
	}
	defer client.Close()

	for _, cmd := range addon.SSH.Commands {
		out, err := runCommand(client, cmd.Command)
		if err != nil {
			log.Debug().Err(err).Str("target_id", target.ID).Str("command", cmd.Command).Msg("poll: ssh command failed")
			continue
		}

		parsed, err := parseengine.Parse(out, addon, addon.ID)
		if err != nil {
			log.Warn().Err(err).Str("target_id", target.ID).Msg("poll: parse error")
			continue
		}
		if parsed == nil {
			continue
		}
		if parsed.DeviceIP == "" {
			parsed.DeviceIP = target.IPAddress
		}
		if _, err := d.engine.Process(ctx, parsed, addon); err != nil {
			log.Error().Err(err).Str("target_id", target.ID).Msg("poll: engine process failed")
		}
	}
}

func runCommand(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("poll: open ssh session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("poll: run command: %w", err)
		}
		return stdout.String(), nil
	case <-time.After(sshCommandTimeout):
		return "", fmt.Errorf("poll: command timed out after %s", sshCommandTimeout)
	}
}
