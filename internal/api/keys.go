package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/types"
)

const maxPublicKeySize = 16 << 10

type PutRoomKeyRequest struct {
	PublicKey json.RawMessage `json:"public_key"`
}

// roomFromQuery loads the room named by the room query parameter. It writes
// the error response itself and returns false when the room is missing.
func (s *GoChatApp) roomFromQuery(w http.ResponseWriter, r *http.Request) (database.Room, bool) {
	roomName := r.URL.Query().Get("room")
	if roomName == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Room{}, false
	}

	room, err := s.db.GetRoomByName(roomName)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Room{}, false
	}

	return room, true
}

// getRoomKeys lists the public keys published for a room. Stored keys that
// are not valid JSON are left out.
func (s *GoChatApp) getRoomKeys(w http.ResponseWriter, r *http.Request) {
	room, ok := s.roomFromQuery(w, r)
	if !ok {
		return
	}

	keys, err := s.db.ListRoomKeys(room.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.RoomKey, 0, len(keys))
	for _, k := range keys {
		if !json.Valid([]byte(k.PublicKey)) {
			continue
		}
		resp = append(resp, types.RoomKey{
			User:      k.Username,
			PublicKey: json.RawMessage(k.PublicKey),
		})
	}

	s.writeJson(w, http.StatusOK, resp)
}

// putRoomKey publishes the caller's public key for a room, replacing any key
// they published before.
func (s *GoChatApp) putRoomKey(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, ok := s.roomFromQuery(w, r)
	if !ok {
		return
	}

	var req PutRoomKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublicKeySize)).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if len(req.PublicKey) == 0 || string(req.PublicKey) == "null" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	err := s.db.UpsertRoomKey(database.UpsertRoomKeyParams{
		RoomId:    room.Id,
		AccountId: userId,
		PublicKey: string(req.PublicKey),
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
