// Who Got Who
//
// Players join a game by its six character code. In stealth mode every
// player is dealt a private list of sneaky tasks to pull off on the others
// and reports each one as a gotcha or a fail; the first to reach the target
// score wins. In race mode everyone shares one list of photo challenges, the
// first completion of each earns gold and later ones silver.
//
// Routes:
//   - POST /games                  create a game, the caller becomes host
//   - POST /games/:gameid/players  join a game in its lobby
//   - GET  /games/:gameid          current game as JSON
//   - GET  /games/:gameid/recap    leaderboard as JSON
//   - GET  /games/:gameid/ws       websocket for one player
//   - GET  /resume                 the game named by the session cookie
//   - GET  /packs                  the pack picker
//   - GET  /proofs/*file           uploaded challenge photos
//
// The session cookie holds "gameID:playerID" so a reload or a new tab puts
// the player back into their game.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/whogotwho/game"
)

const (
	sessionCookieName = "whogotwho_session"
	maxRequestBody    = 64 << 10
)

type session struct {
	gameID   string
	playerID string
}

func readSession(r *http.Request) (session, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return session{}, false
	}
	gameID, playerID, ok := strings.Cut(c.Value, ":")
	if !ok || gameID == "" || playerID == "" {
		return session{}, false
	}
	return session{gameID: gameID, playerID: playerID}, true
}

func setSession(cfg *Config, w http.ResponseWriter, s session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.gameID + ":" + s.playerID,
		Path:     cfg.prefix + "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSession(cfg *Config, w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     cfg.prefix + "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func gameIDParam(ps httprouter.Params) string {
	return strings.ToUpper(strings.TrimSpace(ps.ByName("gameid")))
}

func invalid(message string) error {
	return &game.Error{Kind: game.KindInvalid, Message: message}
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return invalid("could not read request")
	}
	return nil
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logf(cfg, "ERROR: Encoding response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_, _ = w.Write(data)
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	pe := describeError(cfg, err)
	writeJSON(cfg, w, pe.status, ErrorMessage{Type: "error", Kind: pe.kind, Message: pe.message})
}

type playerRequest struct {
	Name   string      `json:"name"`
	Avatar game.Avatar `json:"avatar"`
}

type playerResponse struct {
	GameID   string    `json:"gameId"`
	PlayerID string    `json:"playerId"`
	Game     game.Game `json:"game"`
}

type recapResponse struct {
	GameID    string          `json:"gameId"`
	Status    game.Status     `json:"status"`
	Mode      game.Mode       `json:"mode,omitempty"`
	WinnerID  string          `json:"winnerId,omitempty"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Standings []game.Standing `json:"standings"`
}

func serveCreateGame(cfg *Config, games *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req playerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, err)
			return
		}

		g, host, err := games.CreateGame(r.Context(), req.Name, req.Avatar)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		setSession(cfg, w, session{gameID: g.ID, playerID: host.ID})
		writeJSON(cfg, w, http.StatusCreated, playerResponse{GameID: g.ID, PlayerID: host.ID, Game: g})

		logf(cfg, "GAMES: Created game %s for %s", g.ID, realIP(r))
	}
}

func serveJoinGame(cfg *Config, games *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req playerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, err)
			return
		}

		g, p, err := games.JoinGame(r.Context(), gameIDParam(ps), req.Name, req.Avatar)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		setSession(cfg, w, session{gameID: g.ID, playerID: p.ID})
		writeJSON(cfg, w, http.StatusCreated, playerResponse{GameID: g.ID, PlayerID: p.ID, Game: g})

		logf(cfg, "GAMES: Player %s joined %s from %s", p.ID, g.ID, realIP(r))
	}
}

func serveGameState(cfg *Config, games *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		g, err := games.Get(r.Context(), gameIDParam(ps))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, g)
	}
}

func serveRecap(cfg *Config, games *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		g, err := games.Get(r.Context(), gameIDParam(ps))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, recapResponse{
			GameID:    g.ID,
			Status:    g.Status,
			Mode:      g.Mode,
			WinnerID:  g.WinnerID,
			EndedAt:   g.EndedAt,
			Standings: game.Leaderboard(&g),
		})
	}
}

// serveResume puts a returning player back into their game. Any failure
// clears the cookie so the client falls back to the lobby.
func serveResume(cfg *Config, games *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s, ok := readSession(r)
		if !ok {
			writeError(cfg, w, &game.Error{Kind: game.KindNotFound, Message: "no game to resume"})
			return
		}

		g, err := games.Resume(r.Context(), s.gameID, s.playerID)
		if err != nil {
			if game.KindOf(err) == game.KindNotFound {
				clearSession(cfg, w)
			}
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, playerResponse{GameID: g.ID, PlayerID: s.playerID, Game: g})
	}
}

func servePacks(cfg *Config, games *game.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, games.Rules().Catalog().Summaries())
	}
}

// handleCommand runs one websocket request. Successful changes reach every
// client, this one included, through the store subscription; only failures
// are answered directly.
func (h *Hub) handleCommand(cmd command) {
	c, msg := cmd.client, cmd.msg

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	switch msg.Type {
	case "select_pack":
		_, err = h.games.SelectPack(ctx, h.id, c.playerID, msg.PackID)
	case "start_game":
		_, err = h.games.StartGame(ctx, h.id, c.playerID)
	case "end_game":
		_, err = h.games.EndGame(ctx, h.id, c.playerID)
	case "leave_game":
		var deleted bool
		_, deleted, err = h.games.LeaveGame(ctx, h.id, c.playerID)
		if err == nil && !deleted {
			h.deliver(c, SimpleMessage{Type: "left"})
			if h.clients[c] {
				h.drop(c)
			}
		}
	case "swap_task":
		_, err = h.games.SwapTask(ctx, h.id, c.playerID, msg.TaskID)
	case "lock_in":
		locked := msg.Locked == nil || *msg.Locked
		_, err = h.games.LockIn(ctx, h.id, c.playerID, locked)
	case "claim_gotcha":
		outcome := game.Outcome(msg.Outcome)
		if outcome != game.OutcomePassed && outcome != game.OutcomeFailed {
			err = invalid("outcome must be passed or failed")
			break
		}
		_, err = h.games.ClaimGotcha(ctx, h.id, c.playerID, msg.TaskID, outcome, msg.TargetID)
	case "complete_challenge":
		_, _, err = h.games.CompleteChallenge(ctx, h.id, c.playerID, msg.ChallengeID, msg.Proof)
	case "open_dispute":
		_, _, err = h.games.OpenDispute(ctx, h.id, c.playerID, msg.TaskID)
	case "cast_vote":
		if msg.Uphold == nil {
			err = invalid("a vote needs uphold set to true or false")
			break
		}
		_, err = h.games.CastVote(ctx, h.id, c.playerID, msg.DisputeID, *msg.Uphold)
	default:
		err = invalid("unknown message type " + msg.Type)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logf(h.cfg, "ERROR: %s from %s in %s timed out", msg.Type, c.playerID, h.id)
		}
		h.sendError(c, err)
		return
	}

	logf(h.cfg, "GAMES: %s by %s in %s", msg.Type, c.playerID, h.id)
}

func registerGameRoutes(cfg *Config, games *game.Manager, hubs *HubManager, mux *httprouter.Router) {
	mux.POST(cfg.prefix+"/games", serveCreateGame(cfg, games))
	mux.POST(cfg.prefix+"/games/:gameid/players", serveJoinGame(cfg, games))
	mux.GET(cfg.prefix+"/games/:gameid", serveGameState(cfg, games))
	mux.GET(cfg.prefix+"/games/:gameid/recap", serveRecap(cfg, games))
	mux.GET(cfg.prefix+"/games/:gameid/ws", serveWS(cfg, games, hubs))
	mux.GET(cfg.prefix+"/resume", serveResume(cfg, games))
	mux.GET(cfg.prefix+"/packs", servePacks(cfg, games))
}
