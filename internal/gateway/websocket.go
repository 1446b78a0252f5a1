package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/identity"
	"github.com/ashureev/livesync/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// ServeHTTP upgrades /join/{sessionID} to a WebSocket and runs the
// connection until either side closes it.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	remoteIP := identity.RemoteIPFromContext(r.Context())
	if sessionID != g.opts.SessionID {
		g.logger.Warn("Join for unknown session", "requested", sessionID, "ip", remoteIP)
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.opts.AllowedOrigins,
	})
	if err != nil {
		g.logger.Error("Failed to accept WebSocket", "error", err, "ip", remoteIP)
		return
	}
	ws.SetReadLimit(g.opts.MaxMessageBytes)

	c := newClient(ws, g.opts.QueueSize, g.newLimiter(), remoteIP)
	if !g.hub.add(c) {
		c.close(websocket.StatusGoingAway, "session stopped")
		return
	}
	g.metrics.ConnectionOpened()
	g.logger.Info("Connection opened", "ip", remoteIP, "connections", g.hub.len())

	ctx, cancel := context.WithCancel(identity.WithSessionID(r.Context(), sessionID))
	defer func() {
		cancel()
		g.hub.remove(c)
		c.close(websocket.StatusNormalClosure, "connection ended")
		g.metrics.ConnectionClosed()
		g.logger.Info("Connection closed", "peer", c.label())
	}()

	go c.writeLoop(ctx)
	g.readLoop(ctx, c)
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	for {
		_, raw, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || c.closed() {
				g.logger.Debug("WebSocket closed", "peer", c.label())
			} else {
				g.logger.Warn("WebSocket read error", "error", err, "peer", c.label())
			}
			return
		}

		if !c.allow() {
			g.metrics.MessageThrottled()
			g.logger.Debug("Dropping message over rate limit", "peer", c.label())
			continue
		}

		g.handle(c, raw)
	}
}

// handle applies one inbound message. Errors are logged and never close the connection.
func (g *Gateway) handle(c *client, raw []byte) {
	msg, err := g.validator.decode(raw)
	if err != nil {
		g.protocolError(c, err)
		return
	}
	g.metrics.MessageReceived(string(msg.Type))

	switch msg.Type {
	case domain.MessageJoin:
		err = g.handleJoin(c, msg)
	case domain.MessageLeave:
		err = g.handleLeave(c, msg)
	case domain.MessageCursorUpdate:
		err = g.handleCursor(c, msg)
	case domain.MessageFileChange:
		err = g.handleFileChange(c, msg)
	case domain.MessageChat:
		err = g.handleChat(c, msg)
	case domain.MessageSync:
		err = g.reply(c, c.participant())
	}
	if err != nil {
		g.protocolError(c, err)
		return
	}

	if msg.Type != domain.MessageCursorUpdate && msg.Type != domain.MessageLeave {
		if pid := c.participant(); pid != "" {
			if err := g.engine.Touch(pid); err != nil {
				g.logger.Debug("Failed to touch participant", "participant_id", pid, "error", err)
			}
		}
	}
}

func (g *Gateway) protocolError(c *client, err error) {
	reason := "invalid"
	var perr *domain.ProtocolError
	if errors.As(err, &perr) {
		reason = perr.Reason
	}
	g.metrics.ProtocolError(reason)
	g.logger.Warn("Rejected message", "peer", c.label(), "reason", reason, "error", err)
}

// reply sends the full snapshot to c only.
func (g *Gateway) reply(c *client, participantID string) error {
	msg, err := domain.SyncMessage(participantID, g.engine.Snapshot(), g.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode sync reply: %w", err)
	}
	if err := c.deliver(data); err != nil {
		g.logger.Warn("Failed to deliver sync reply", "peer", c.label(), "error", err)
		g.metrics.DeliveryFailed("sync")
		return nil
	}
	c.markSynced()
	return nil
}

func (g *Gateway) handleJoin(c *client, msg domain.Message) error {
	if msg.ParticipantID != "" {
		if !identity.IsValidParticipantID(msg.ParticipantID) {
			return domain.NewProtocolError(msg.Type, "invalid_participant", nil)
		}
		if _, ok := g.engine.Lookup(msg.ParticipantID); !ok {
			return domain.NewProtocolError(msg.Type, "unknown_participant", domain.ErrParticipantNotFound)
		}
		c.bind(msg.ParticipantID)
		return g.reply(c, msg.ParticipantID)
	}

	var data domain.JoinData
	if msg.Data != nil {
		if err := msg.Decode(&data); err != nil {
			return domain.NewProtocolError(msg.Type, "invalid_data", err)
		}
	}
	if data.Name == "" {
		return domain.NewProtocolError(msg.Type, "missing_participant", nil)
	}
	role, err := domain.ParseRole(data.Role)
	if err != nil {
		return domain.NewProtocolError(msg.Type, "invalid_role", err)
	}

	p, err := g.engine.Join(data.Name, data.Email, role)
	if err != nil {
		return domain.NewProtocolError(msg.Type, "join_rejected", err)
	}
	c.bind(p.ID)
	g.logger.Info("Participant joined", "participant_id", p.ID, "role", p.Role)
	g.record(store.EventJoin, p.ID, p.Name)

	if err := g.reply(c, p.ID); err != nil {
		return err
	}
	out, err := g.stamp(domain.MessageJoin, p.ID, domain.JoinData{Participant: &p})
	if err != nil {
		return err
	}
	g.Broadcast(out)
	return nil
}

func (g *Gateway) handleLeave(c *client, msg domain.Message) error {
	pid := msg.ParticipantID
	if pid == "" {
		pid = c.participant()
	}
	if pid == "" {
		return domain.NewProtocolError(msg.Type, "missing_participant", nil)
	}
	if c.participant() == pid {
		c.unbind()
	}
	g.record(store.EventLeave, pid, "")

	out, err := g.stamp(domain.MessageLeave, pid, domain.LeaveData{ParticipantID: pid})
	if err != nil {
		return err
	}
	g.Broadcast(out)
	return nil
}

func (g *Gateway) handleCursor(c *client, msg domain.Message) error {
	pid := msg.ParticipantID
	if pid == "" {
		pid = c.participant()
	}
	if pid == "" {
		return domain.NewProtocolError(msg.Type, "missing_participant", nil)
	}

	var data domain.CursorData
	if err := msg.Decode(&data); err != nil {
		return domain.NewProtocolError(msg.Type, "invalid_data", err)
	}
	p, err := g.engine.MoveCursor(pid, data.Cursor)
	if err != nil {
		return domain.NewProtocolError(msg.Type, "unknown_participant", err)
	}

	out, err := g.stamp(domain.MessageCursorUpdate, p.ID, domain.CursorData{Cursor: *p.Cursor})
	if err != nil {
		return err
	}
	g.Broadcast(out)
	return nil
}

func (g *Gateway) handleFileChange(c *client, msg domain.Message) error {
	var data domain.FileChangeData
	if err := msg.Decode(&data); err != nil {
		return domain.NewProtocolError(msg.Type, "invalid_data", err)
	}

	modifiedBy := data.ModifiedBy
	if modifiedBy == "" {
		modifiedBy = msg.ParticipantID
	}
	if modifiedBy == "" {
		modifiedBy = c.participant()
	}

	fs, err := g.engine.ApplyChange(data.FilePath, data.Content, modifiedBy)
	if err != nil {
		return domain.NewProtocolError(msg.Type, "invalid_path", err)
	}
	g.metrics.FileChangeApplied("participant")
	g.record(store.EventFileChange, modifiedBy, fmt.Sprintf("%s@v%d", fs.Path, fs.Version))

	out, err := domain.FileChangeMessage(fs)
	if err != nil {
		return err
	}
	out.ParticipantID = msg.ParticipantID
	g.Broadcast(out)
	return nil
}

func (g *Gateway) handleChat(c *client, msg domain.Message) error {
	var data domain.ChatData
	if err := msg.Decode(&data); err != nil {
		return domain.NewProtocolError(msg.Type, "invalid_data", err)
	}
	pid := msg.ParticipantID
	if pid == "" {
		pid = c.participant()
	}

	g.logger.Info("Chat message", "participant_id", pid, "text", data.Text)
	g.record(store.EventChat, pid, data.Text)

	out, err := g.stamp(domain.MessageChat, pid, data)
	if err != nil {
		return err
	}
	g.Broadcast(out)
	return nil
}
