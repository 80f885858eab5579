package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dinder-app/push-relay/internal/dispatch"
	"github.com/dinder-app/push-relay/internal/resolve"
	"github.com/dinder-app/push-relay/pkg/relay"
)

// NotifyAPI exposes the two authorization-checked notify operations. Each
// request walks the same linear pipeline: authenticate (middleware) →
// authorize → validate → resolve → dispatch → respond.
type NotifyAPI struct {
	resolver    *resolve.Resolver
	coordinator *dispatch.Coordinator
	logger      *slog.Logger
}

func NewNotifyAPI(resolver *resolve.Resolver, coordinator *dispatch.Coordinator, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		resolver:    resolver,
		coordinator: coordinator,
		logger:      logger.With("component", "NotifyAPI"),
	}
}

type friendRequestBody struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type friendRequestResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// SendFriendRequest notifies one receiver that the caller sent a friend
// request. The one intended recipient being unreachable is a loud failure.
func (a *NotifyAPI) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "no authenticated caller")
		return
	}

	var body friendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid json body")
		return
	}

	// Callers may only act as themselves, checked before any store read.
	if body.SenderID != principal.UID {
		writeError(w, http.StatusForbidden, codeForbidden, "senderId does not match authenticated user")
		return
	}
	if body.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing senderId or receiverId")
		return
	}

	res, err := a.resolver.ResolveFriendRequest(ctx, body.SenderID, body.ReceiverID)
	if err != nil {
		a.writeResolutionError(w, r, err)
		return
	}

	report := a.coordinator.Dispatch(ctx, res.Targets, func(relay.DispatchTarget) relay.NotificationPayload {
		return relay.NotificationPayload{
			Title: "New Friend Request",
			Body:  fmt.Sprintf("%s sent you a friend request!", res.SenderName),
			Kind:  relay.KindFriendRequest,
			Data: map[string]string{
				"type":     string(relay.KindFriendRequest),
				"senderId": body.SenderID,
			},
		}
	})

	if report.Sent == 0 {
		a.logger.Error("friend request delivery failed on every device",
			"request_id", RequestIDFromContext(ctx),
			"receiver_id", body.ReceiverID,
			"failed", report.Failed,
		)
		writeError(w, http.StatusInternalServerError, codeFCMError, "notification delivery failed")
		return
	}

	writeJSON(w, http.StatusOK, friendRequestResponse{
		Success:   true,
		MessageID: report.FirstDeliveryID(),
	})
}

type chatMessageBody struct {
	ChatID      string `json:"chatId"`
	SenderID    string `json:"senderId"`
	MessageText string `json:"messageText"`
}

type chatMessageResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chatId"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// SendChatMessage fans a new-message notification out to every reachable
// conversation member except the sender. Individual send failures are
// reflected in the counts, never as a request failure.
func (a *NotifyAPI) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "no authenticated caller")
		return
	}

	var body chatMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid json body")
		return
	}

	if body.SenderID != principal.UID {
		writeError(w, http.StatusForbidden, codeForbidden, "senderId does not match authenticated user")
		return
	}
	if body.ChatID == "" || body.MessageText == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing chatId, senderId or messageText")
		return
	}

	report, err := a.NotifyChatMessage(ctx, body.ChatID, body.SenderID, body.MessageText)
	if err != nil {
		a.writeResolutionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatMessageResponse{
		Success: true,
		ChatID:  body.ChatID,
		Sent:    report.Sent,
		Failed:  report.Failed,
	})
}

// NotifyChatMessage is the transport-independent chat fan-out, shared by the
// HTTP handler and the event ingestion consumer.
func (a *NotifyAPI) NotifyChatMessage(ctx context.Context, chatID, senderID, messageText string) (relay.DispatchReport, error) {
	res, err := a.resolver.ResolveChatMessage(ctx, chatID, senderID)
	if err != nil {
		return relay.DispatchReport{}, err
	}

	title := res.SenderName
	if res.Chat.Type == relay.ConversationGroup && res.Chat.Name != "" {
		title = res.SenderName + " in " + res.Chat.Name
	}

	report := a.coordinator.Dispatch(ctx, res.Targets, func(relay.DispatchTarget) relay.NotificationPayload {
		return relay.NotificationPayload{
			Title: title,
			Body:  messageText,
			Kind:  relay.KindChatMessage,
			Data: map[string]string{
				"type":     string(relay.KindChatMessage),
				"chatId":   chatID,
				"senderId": senderID,
			},
		}
	})
	return report, nil
}

// Health answers the liveness probe.
func (a *NotifyAPI) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Dinder Push API is running!"})
}

func (a *NotifyAPI) writeResolutionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resolve.ErrTargetNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "target not found")
	case errors.Is(err, resolve.ErrNoDeliveryToken):
		writeError(w, http.StatusBadRequest, codeNoTargetToken, "receiver has no delivery token")
	case errors.Is(err, resolve.ErrInvalidSourceData):
		writeError(w, http.StatusBadRequest, codeInvalidData, "conversation has no member list")
	case errors.Is(err, resolve.ErrSenderNotMember):
		writeError(w, http.StatusForbidden, codeForbidden, "caller is not a member of this chat")
	default:
		a.logger.Error("request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
