package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZKMembership registers this region server in ZooKeeper and watches the
// live server set. Registration is an ephemeral node, so a crashed server
// drops out on session expiry.
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string
	local    string // server addr
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKMembership(servers []string, rootPath, localAddr string, sessionTimeout time.Duration) (*ZKMembership, error) {
	if sessionTimeout <= 0 {
		sessionTimeout = 5 * time.Second
	}
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ZKMembership{
		conn:     conn,
		rootPath: rootPath,
		local:    localAddr,
	}, nil
}

func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

func (m *ZKMembership) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

// RegisterSelf creates the ephemeral node for this server.
func (m *ZKMembership) RegisterSelf() error {
	// wait until the client actually has a session
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}

	if err := m.ensurePath(m.rootPath + "/servers"); err != nil {
		return fmt.Errorf("ensure servers path: %w", err)
	}

	serverPath := fmt.Sprintf("%s/servers/%s", m.rootPath, m.local)

	_, err := m.conn.Create(serverPath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create ephemeral node: %w", err)
	}

	slog.Info("registered region server", "path", serverPath)
	return nil
}

// Servers reads the current live server list.
func (m *ZKMembership) Servers() ([]string, error) {
	children, _, err := m.conn.Children(m.rootPath + "/servers")
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}
	return children, nil
}

// WatchServers calls onChange with the server list now and after every
// membership change, until ctx is cancelled.
func (m *ZKMembership) WatchServers(ctx context.Context, onChange func(servers []string)) {
	go func() {
		for {
			children, _, ch, err := m.conn.ChildrenW(m.rootPath + "/servers")
			if err != nil {
				slog.Warn("zk ChildrenW failed", "error", err)
				select {
				case <-time.After(2 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			onChange(children)

			select {
			case ev := <-ch:
				slog.Debug("zk membership event", "type", ev.Type.String(), "path", ev.Path)
				// loop and re-read the server list
			case <-ctx.Done():
				slog.Info("zk watch stopped")
				return
			}
		}
	}()
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
