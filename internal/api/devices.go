package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dinder-app/push-relay/pkg/relay"
)

// DeviceAPI manages the caller's registered delivery endpoints. The
// principal can only register devices for itself.
type DeviceAPI struct {
	store  relay.Store
	logger *slog.Logger
}

func NewDeviceAPI(store relay.Store, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		store:  store,
		logger: logger.With("component", "DeviceAPI"),
	}
}

type deviceBody struct {
	Platform string `json:"platform"`
	Token    string `json:"token"`
}

func (a *DeviceAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "no authenticated caller")
		return
	}

	var body deviceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid json body")
		return
	}
	if body.Token == "" || !relay.KnownPlatform(relay.Platform(body.Platform)) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing token or unknown platform")
		return
	}

	device := relay.Device{Platform: relay.Platform(body.Platform), Token: body.Token}
	if err := a.store.RegisterDevice(ctx, principal.UID, device); err != nil {
		a.logger.Error("failed to register device", "user_id", principal.UID, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *DeviceAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "no authenticated caller")
		return
	}

	var body deviceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid json body")
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing token")
		return
	}

	device := relay.Device{Platform: relay.Platform(body.Platform), Token: body.Token}
	if err := a.store.UnregisterDevice(ctx, principal.UID, device); err != nil {
		// Log but don't fail hard; unregister is expected to be idempotent.
		a.logger.Warn("failed to unregister device", "user_id", principal.UID, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
