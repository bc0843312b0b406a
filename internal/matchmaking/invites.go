package matchmaking

import (
	"log/slog"
	"strings"
	"time"

	"github.com/HoudaChairi/Ft-transcendence/internal/match"
	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

// InviteStatus is the state of an invite
type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteAccepted  InviteStatus = "accepted"
	InviteCancelled InviteStatus = "cancelled"
)

// Invite is a direct challenge from Sender to Recipient
type Invite struct {
	ID        string
	Sender    string
	Recipient string
	Status    InviteStatus
	CreatedAt time.Time
}

// InviteID returns the id of the invite from sender to recipient
func InviteID(sender, recipient string) string {
	return sender + "|" + recipient
}

func splitInviteID(id string) (string, string, bool) {
	return strings.Cut(id, "|")
}

// SendInvite challenges recipient. A sender has at most one pending
// invite; sending a new one cancels the previous. Re-sending the same
// pending invite is a no-op.
func (m *Manager) SendInvite(sender, recipient string) (Invite, error) {
	if sender == recipient {
		return Invite{}, ErrSelfInvite
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.reg.Online(recipient) {
		return Invite{}, ErrRecipientOffline
	}
	if err := m.checkPartiesLocked(sender, recipient); err != nil {
		return Invite{}, err
	}

	id := InviteID(sender, recipient)
	if prev, ok := m.bySender[sender]; ok {
		if prev == id {
			return *m.invites[id], nil
		}
		m.cancelInviteLocked(prev, "replaced")
	}

	inv := &Invite{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Status:    InvitePending,
		CreatedAt: m.clock.Now(),
	}
	m.invites[id] = inv
	m.bySender[sender] = id

	m.reg.Send(recipient, protocol.InviteNotice{Type: protocol.MsgInvite, InviteID: id, Sender: sender})
	m.reg.Send(sender, protocol.InviteSent{Type: protocol.MsgInviteSent, InviteID: id, Recipient: recipient})
	m.logger.Info("invite sent", slog.String("sender", sender), slog.String("recipient", recipient))
	return *inv, nil
}

// RespondInvite answers an invite addressed to recipient. Accepting
// creates the session; declining cancels the invite and tells both
// parties. Accepting an invite whose session already exists is a no-op.
func (m *Manager) RespondInvite(recipient, inviteID string, answer protocol.InviteAnswer) (*match.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[inviteID]
	if !ok || inv.Recipient != recipient {
		if sender, to, ok := splitInviteID(inviteID); ok && to == recipient && answer == protocol.Accept {
			if e, live := m.reg.SessionForPair(sender, recipient); live && e.Phase() != match.Ended {
				return e, nil
			}
		}
		return nil, ErrInviteNotFound
	}

	if answer != protocol.Accept {
		m.cancelInviteLocked(inviteID, "declined")
		return nil, nil
	}

	if err := m.checkPartiesLocked(inv.Sender, inv.Recipient); err != nil {
		return nil, err
	}
	inv.Status = InviteAccepted
	m.removeInviteLocked(inviteID)
	m.logger.Info("invite accepted", slog.String("sender", inv.Sender), slog.String("recipient", recipient))
	return m.createLocked(inv.Sender, inv.Recipient, nil)
}

// checkPartiesLocked rejects an invite while either side is playing or
// still in a bracket.
func (m *Manager) checkPartiesLocked(players ...string) error {
	for _, p := range players {
		if e, ok := m.reg.SessionFor(p); ok && e.Phase() != match.Ended {
			return ErrInSession
		}
		if _, ok := m.reg.Tournament(p); ok {
			return ErrInTournament
		}
	}
	return nil
}

// PendingInvite returns the sender's pending invite
func (m *Manager) PendingInvite(sender string) (Invite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySender[sender]
	if !ok {
		return Invite{}, false
	}
	return *m.invites[id], true
}

// cancelInvitesLocked cancels every invite player sent or received
func (m *Manager) cancelInvitesLocked(player, reason string) {
	for id, inv := range m.invites {
		if inv.Sender == player || inv.Recipient == player {
			m.cancelInviteLocked(id, reason)
		}
	}
}

func (m *Manager) cancelInviteLocked(id, reason string) {
	inv, ok := m.invites[id]
	if !ok {
		return
	}
	inv.Status = InviteCancelled
	m.removeInviteLocked(id)
	msg := protocol.InviteCancelled{Type: protocol.MsgInviteCancelled, InviteID: id, Reason: reason}
	m.reg.Send(inv.Sender, msg)
	m.reg.Send(inv.Recipient, msg)
}

func (m *Manager) removeInviteLocked(id string) {
	inv, ok := m.invites[id]
	if !ok {
		return
	}
	delete(m.invites, id)
	if m.bySender[inv.Sender] == id {
		delete(m.bySender, inv.Sender)
	}
}
