package server

import (
	"errors"
	"log/slog"

	"github.com/HoudaChairi/Ft-transcendence/internal/match"
	"github.com/HoudaChairi/Ft-transcendence/internal/matchmaking"
	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

const errIdentifyFirst = "identify first"

// handleMessage decodes one client frame and routes it. Malformed and
// unknown messages get an error reply; semantically invalid ones are
// dropped.
func (c *Client) handleMessage(raw []byte) {
	req, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidInput) {
			c.logger.Debug("ignored input", slog.Any("error", err))
			return
		}
		c.Send(protocol.NewError(err.Error()))
		return
	}

	if id, ok := req.(protocol.Identify); ok {
		c.handleIdentify(id)
		return
	}
	if _, ok := req.(protocol.Ping); ok {
		c.Send(protocol.Pong{Type: protocol.MsgPong})
		return
	}

	player := c.Player()
	if player == "" {
		switch req.(type) {
		case protocol.Move, protocol.Stop:
			// input before identify is not an error worth reporting
		default:
			c.Send(protocol.NewError(errIdentifyFirst))
		}
		return
	}

	switch r := req.(type) {
	case protocol.Move:
		c.handleInput(player, r.Direction)
	case protocol.Stop:
		c.handleInput(player, protocol.Stationary)
	case protocol.Invite:
		if _, err := c.hub.mgr.SendInvite(player, r.Recipient); err != nil {
			c.Send(protocol.NewError(err.Error()))
		}
	case protocol.InviteResponse:
		if _, err := c.hub.mgr.RespondInvite(player, r.InviteID, r.Response); err != nil {
			c.Send(protocol.NewError(err.Error()))
		}
	case protocol.JoinTournament:
		if r.PlayerID != "" && r.PlayerID != player {
			c.Send(protocol.NewError("player id does not match this connection"))
			return
		}
		c.join(player, matchmaking.Tournament)
	case protocol.JoinQueue:
		c.join(player, matchmaking.Casual)
	case protocol.LeaveQueue:
		c.hub.mgr.LeaveQueue(player)
	case protocol.LeaveTournament:
		c.hub.mgr.LeaveTournamentQueue(player)
	}
}

func (c *Client) handleIdentify(req protocol.Identify) {
	c.mu.Lock()
	current := c.player
	c.mu.Unlock()
	if current != "" {
		if current != req.PlayerID {
			c.Send(protocol.NewError("connection already identified"))
			return
		}
		// Re-identify is a no-op apart from the acknowledgement.
		c.Send(protocol.Identified{Type: protocol.MsgIdentified, PlayerID: current})
		return
	}

	if v := c.hub.opts.Identity; v != nil {
		if err := v.Verify(req.Token, req.PlayerID); err != nil {
			c.logger.Warn("identify rejected", slog.String("player", req.PlayerID), slog.Any("error", err))
			c.Send(protocol.NewError(ErrBadIdentity.Error()))
			return
		}
	}

	avatar := req.Avatar
	if avatar == "" {
		avatar = c.hub.avatarFor(req.PlayerID)
	}
	c.hub.mgr.SetAvatar(req.PlayerID, avatar)

	c.mu.Lock()
	c.player = req.PlayerID
	c.codec = protocol.CodecFor(req.Encoding)
	c.mu.Unlock()

	if prev, replaced := c.hub.reg.Bind(req.PlayerID, c); replaced {
		c.logger.Info("connection replaced", slog.String("player", req.PlayerID))
		if old, ok := prev.(interface{ Close() }); ok {
			old.Close()
		}
	}
	c.Send(protocol.Identified{Type: protocol.MsgIdentified, PlayerID: req.PlayerID})
	c.logger.Info("player identified", slog.String("player", req.PlayerID))

	c.resume(req.PlayerID, req.TournamentLink)
}

// resume attaches the connection to the player's live session, if any
func (c *Client) resume(player string, link *protocol.Link) {
	e, ok := c.hub.reg.SessionFor(player)
	if !ok || e.Phase() == match.Ended {
		if link != nil {
			c.Send(protocol.NewError("tournament match not found"))
		}
		return
	}
	if link != nil {
		if l := e.Link(); l == nil || l.TournamentID != link.TournamentID || l.MatchID != link.MatchID {
			c.Send(protocol.NewError("tournament match not found"))
			return
		}
	}
	if err := e.Attach(player, c); err != nil {
		c.logger.Warn("attach failed", slog.String("player", player), slog.Any("error", err))
	}
}

func (c *Client) handleInput(player string, dir protocol.Direction) {
	e, ok := c.hub.reg.SessionFor(player)
	if !ok {
		return
	}
	e.ApplyInput(player, dir)
}

func (c *Client) join(player string, mode matchmaking.Mode) {
	pos, err := c.hub.mgr.JoinQueue(player, mode)
	if err != nil {
		c.Send(protocol.NewError(err.Error()))
		return
	}
	c.Send(protocol.Queued{Type: protocol.MsgQueued, Mode: string(mode), Position: pos})
}
