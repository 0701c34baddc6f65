// Package api issues platform action calls and pairs them with replies.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/wirebot/internal/correlate"
	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/onebot"
)

// LoginInfo identifies the bot account.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// GroupInfo describes one group the bot is a member of.
type GroupInfo struct {
	GroupID     int64  `json:"group_id"`
	GroupName   string `json:"group_name"`
	MemberCount int64  `json:"member_count"`
}

// GroupMemberInfo describes one member of a group.
type GroupMemberInfo struct {
	GroupID  int64  `json:"group_id"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

// Client issues action calls over the shared writer, correlating replies
// by echo token.
type Client struct {
	w       onebot.Writer
	corr    *correlate.Correlator
	timeout time.Duration
	log     *logging.Logger
}

// New creates a client. timeout bounds every Invoke's wait for a reply.
func New(w onebot.Writer, corr *correlate.Correlator, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{w: w, corr: corr, timeout: timeout, log: log.Sub("api")}
}

// Invoke sends an action and blocks for the platform's reply. The waiter
// is registered before the frame leaves, so a reply racing the send
// cannot slip past it.
func (c *Client) Invoke(ctx context.Context, action string, params map[string]any) (*onebot.Event, error) {
	echo := uuid.New().String()
	pending := c.corr.Register(correlate.ForEcho(echo), c.timeout)

	req := onebot.NewRequest(action, params).WithEcho(echo)
	if err := c.w.Send(req); err != nil {
		pending.Cancel()
		return nil, fmt.Errorf("sending %s: %w", action, err)
	}

	reply, err := pending.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("awaiting %s: %w", action, err)
	}
	// Retcode 1 means the platform accepted the action for async handling.
	if reply.Retcode != 0 && reply.Retcode != 1 {
		return nil, fmt.Errorf("%s failed: retcode %d (%s)", action, reply.Retcode, reply.Status)
	}
	return reply, nil
}

// Notify sends an action without waiting for any reply.
func (c *Client) Notify(action string, params map[string]any) error {
	return c.w.Send(onebot.NewRequest(action, params))
}

// AwaitGroupReply blocks for the next message from a user in a group.
// Pass zero for user to accept any member.
func (c *Client) AwaitGroupReply(ctx context.Context, group, user int64, timeout time.Duration) (*onebot.Event, error) {
	return c.corr.Wait(ctx, correlate.ForSubject(group, user), timeout)
}

// GetLoginInfo returns the account the upstream is logged in as.
func (c *Client) GetLoginInfo(ctx context.Context) (*LoginInfo, error) {
	reply, err := c.Invoke(ctx, "get_login_info", nil)
	if err != nil {
		return nil, err
	}
	var info LoginInfo
	if err := reply.DecodeData(&info); err != nil {
		return nil, fmt.Errorf("decoding login info: %w", err)
	}
	return &info, nil
}

// SendGroupMessage sends segments to a group and returns the platform's
// id for the new message.
func (c *Client) SendGroupMessage(ctx context.Context, group int64, segs ...onebot.Segment) (int64, error) {
	reply, err := c.Invoke(ctx, "send_group_msg", map[string]any{
		"group_id": group,
		"message":  segs,
	})
	if err != nil {
		return 0, err
	}
	return messageID(reply)
}

// SendPrivateMessage sends segments to a user and returns the platform's
// id for the new message.
func (c *Client) SendPrivateMessage(ctx context.Context, user int64, segs ...onebot.Segment) (int64, error) {
	reply, err := c.Invoke(ctx, "send_private_msg", map[string]any{
		"user_id": user,
		"message": segs,
	})
	if err != nil {
		return 0, err
	}
	return messageID(reply)
}

// GetGroupList returns every group the account is in.
func (c *Client) GetGroupList(ctx context.Context) ([]GroupInfo, error) {
	reply, err := c.Invoke(ctx, "get_group_list", nil)
	if err != nil {
		return nil, err
	}
	var groups []GroupInfo
	if err := reply.DecodeData(&groups); err != nil {
		return nil, fmt.Errorf("decoding group list: %w", err)
	}
	return groups, nil
}

// ActiveGroups lists group ids, satisfying schedule.GroupSource.
func (c *Client) ActiveGroups(ctx context.Context) ([]int64, error) {
	groups, err := c.GetGroupList(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.GroupID)
	}
	return ids, nil
}

// GetGroupMemberInfo looks up one member of a group.
func (c *Client) GetGroupMemberInfo(ctx context.Context, group, user int64) (*GroupMemberInfo, error) {
	reply, err := c.Invoke(ctx, "get_group_member_info", map[string]any{
		"group_id": group,
		"user_id":  user,
	})
	if err != nil {
		return nil, err
	}
	var info GroupMemberInfo
	if err := reply.DecodeData(&info); err != nil {
		return nil, fmt.Errorf("decoding member info: %w", err)
	}
	return &info, nil
}

// SetGroupBan mutes a group member. A zero duration lifts the mute.
func (c *Client) SetGroupBan(ctx context.Context, group, user int64, d time.Duration) error {
	_, err := c.Invoke(ctx, "set_group_ban", map[string]any{
		"group_id": group,
		"user_id":  user,
		"duration": int64(d / time.Second),
	})
	return err
}

// DeleteMessage recalls a previously sent message by its platform id.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := c.Invoke(ctx, "delete_msg", map[string]any{
		"message_id": messageID,
	})
	return err
}

func messageID(reply *onebot.Event) (int64, error) {
	var data struct {
		MessageID int64 `json:"message_id"`
	}
	if err := reply.DecodeData(&data); err != nil {
		return 0, fmt.Errorf("decoding message id: %w", err)
	}
	return data.MessageID, nil
}
