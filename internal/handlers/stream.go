package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kompas/api/internal/models"
	"kompas/api/internal/presence"
	"kompas/api/internal/realtime"
	"kompas/api/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Origin checks are skipped: every socket is authenticated with a bearer
// token before the upgrade, and browsers are not the primary client.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func membersEqual(a, b []models.MemberPresence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

type presenceFrame struct {
	Type    string                  `json:"type"`
	GroupID string                  `json:"groupId"`
	Members []models.MemberPresence `json:"members"`
}

type directoryFrame struct {
	Type   string          `json:"type"`
	Groups []groupResponse `json:"groups"`
}

type subscribeCommand struct {
	Action  string `json:"action"`
	GroupID string `json:"groupId"`
}

// PresenceStream pushes full member snapshots for one group at a time. The
// client may switch groups mid-connection with
// {"action":"subscribe","groupId":...}; each frame replaces all prior state.
func (h HandlerSet) PresenceStream(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	groupID := c.Param("groupId")
	if _, err := h.groupService.GetGroupForMember(c.Request.Context(), user.ID, groupID); err != nil {
		writeGroupError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := presence.NewSubscriber(h.feed, h.presenceStore, h.log)
	defer sub.Stop()

	if err := sub.Start(groupID); err != nil {
		h.log.Error().Err(err).Str("group_id", groupID).Msg("presence listen failed")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reader: keepalive plus group-switch commands. Switches re-check
	// membership against the directory before the subscriber moves over.
	switches := make(chan string)
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var cmd subscribeCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Action != "subscribe" || cmd.GroupID == "" {
				continue
			}
			select {
			case switches <- cmd.GroupID:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	active := groupID
	var last []models.MemberPresence
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-switches:
			if _, err := h.groupService.GetGroupForMember(ctx, user.ID, next); err != nil {
				h.log.Warn().Err(err).Str("user_id", user.ID).Str("group_id", next).Msg("subscribe rejected")
				continue
			}
			if err := sub.Start(next); err != nil {
				h.log.Error().Err(err).Str("group_id", next).Msg("presence listen failed")
				return
			}
			active = next
			last, sent = nil, false
		case snapshot := <-sub.Updates():
			if snapshot.GroupID != active {
				continue
			}
			// A refresh signal with no visible change produces no frame.
			if sent && membersEqual(last, snapshot.Members) {
				continue
			}
			last, sent = snapshot.Members, true
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(presenceFrame{
				Type:    "replace",
				GroupID: snapshot.GroupID,
				Members: snapshot.Members,
			}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// DirectoryStream pushes the caller's full group list whenever it changes.
func (h HandlerSet) DirectoryStream(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan []models.Group, 1)
	watcher := realtime.NewWatcher(h.feed, h.log)
	defer watcher.Stop()

	err = watcher.Listen(service.DirectoryChannel(user.ID), func(ctx context.Context) {
		groups, err := h.groupService.ListGroups(ctx, user.ID)
		if err != nil {
			h.log.Warn().Err(err).Str("user_id", user.ID).Msg("directory refresh failed")
			groups = []models.Group{}
		}
		realtime.Send(ctx, updates, groups)
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("directory listen failed")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case groups := <-updates:
			resp := make([]groupResponse, 0, len(groups))
			for _, group := range groups {
				resp = append(resp, toGroupResponse(group))
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(directoryFrame{Type: "replace", Groups: resp}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
