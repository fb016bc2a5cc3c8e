package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/overlaytrust/timeline/internal/checkengine"
	"github.com/overlaytrust/timeline/internal/ledger"
	"github.com/overlaytrust/timeline/internal/mutation"
	"github.com/overlaytrust/timeline/internal/policylog"
	"github.com/overlaytrust/timeline/internal/timelinelog"
	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

var validate = validator.New()

// memoryCommunity is the minimal Community implementation the demo server
// runs against: a fixed master member and a manually-advanced clock. A real
// community would derive GlobalTime from the gossip/network layer this
// repo excludes.
type memoryCommunity struct {
	mu     sync.Mutex
	master timelinemodel.Member
	me     timelinemodel.Member
	clock  uint64
}

func (c *memoryCommunity) MasterMember() timelinemodel.Member { return c.master }
func (c *memoryCommunity) MyMember() timelinemodel.Member     { return c.me }

func (c *memoryCommunity) GlobalTime() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

func (c *memoryCommunity) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	return c.clock
}

// App wires together the timeline core and its collaborators for the demo
// HTTP surface.
type App struct {
	community *memoryCommunity
	ledger    *ledger.MemberLedger
	policy    *policylog.PolicyLog
	engine    *checkengine.Engine
	mutation  *mutation.API
	log       *timelinelog.Logger

	metaMu sync.Mutex
	metas  map[string]*timelinemodel.MessageMeta
}

// NewApp builds a demo application with a fresh in-memory timeline, seeding
// message-type metadata with Linear resolution by default.
func NewApp(log *timelinelog.Logger) *App {
	master := timelinemodel.Member{Key: timelinemodel.MemberKeyFromBytes([]byte("master")), DatabaseID: 0}
	community := &memoryCommunity{master: master, me: master, clock: 1}
	l := ledger.New()
	p := policylog.New()

	app := &App{community: community, ledger: l, policy: p, log: log, metas: make(map[string]*timelinemodel.MessageMeta)}
	app.engine = checkengine.New(community, l, p)
	app.mutation = mutation.New(l, p, app.engine)
	return app
}

func (a *App) metaFor(name string) *timelinemodel.MessageMeta {
	a.metaMu.Lock()
	defer a.metaMu.Unlock()
	if m, ok := a.metas[name]; ok {
		return m
	}
	m := timelinemodel.NewMessageMeta(name, timelinemodel.Linear())
	a.metas[name] = m
	return m
}

func memberFromID(id string) timelinemodel.Member {
	return timelinemodel.Member{Key: timelinemodel.MemberKeyFromBytes([]byte(id))}
}

// tripletDTO is the wire shape of one permission triplet in an authorize or
// revoke request body.
type tripletDTO struct {
	Member      string `json:"member" validate:"required"`
	MessageName string `json:"message_name" validate:"required"`
	Permission  string `json:"permission" validate:"required,oneof=permit authorize revoke undo"`
}

type authorizeRequest struct {
	Signer   string       `json:"signer" validate:"required"`
	Triplets []tripletDTO `json:"triplets" validate:"required,min=1,dive"`
}

func (a *App) handleAuthorizeOrRevoke(grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authorizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}

		globalTime := a.community.Advance()
		signer := memberFromID(req.Signer)
		triplets := make([]timelinemodel.PermissionTriplet, 0, len(req.Triplets))
		for _, t := range req.Triplets {
			triplets = append(triplets, timelinemodel.PermissionTriplet{
				Member:     memberFromID(t.Member),
				TargetMeta: a.metaFor(t.MessageName),
				Permission: timelinemodel.Permission(t.Permission),
			})
		}

		proof := &timelinemodel.MessageImpl{Signer: signer, GlobalTime: globalTime}
		var ok bool
		var err error
		if grant {
			ok, _, err = a.mutation.Authorize(signer, globalTime, triplets, proof)
		} else {
			ok, _, err = a.mutation.Revoke(signer, globalTime, triplets, proof)
		}
		if err != nil {
			writeError(w, http.StatusConflict, "mutation_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"allowed": ok, "global_time": globalTime})
	}
}

type allowedResponse struct {
	Allowed    bool   `json:"allowed"`
	ProofCount int    `json:"proof_count"`
	GlobalTime uint64 `json:"global_time"`
}

func (a *App) handleAllowed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	member := q.Get("member")
	messageName := q.Get("message_name")
	permission := q.Get("permission")
	if member == "" || messageName == "" || permission == "" {
		writeError(w, http.StatusBadRequest, "missing_params", "member, message_name and permission are required")
		return
	}

	globalTime := a.community.GlobalTime()
	allowed, proofs := a.engine.Allowed(memberFromID(member), globalTime, timelinemodel.Permission(permission), a.metaFor(messageName))
	writeJSON(w, http.StatusOK, allowedResponse{Allowed: allowed, ProofCount: len(proofs), GlobalTime: globalTime})
}

type changePolicyRequest struct {
	Signer      string `json:"signer" validate:"required"`
	MessageName string `json:"message_name" validate:"required"`
	Policy      string `json:"policy" validate:"required,oneof=Public Linear"`
}

func (a *App) handleChangePolicy(w http.ResponseWriter, r *http.Request) {
	var req changePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	kind := timelinemodel.ResolutionPublic
	if req.Policy == "Linear" {
		kind = timelinemodel.ResolutionLinear
	}

	globalTime := a.community.Advance()
	signer := memberFromID(req.Signer)
	proof := &timelinemodel.MessageImpl{Signer: signer, GlobalTime: globalTime}
	ok, _, err := a.mutation.ChangeResolutionPolicy(signer, globalTime, req.MessageName, kind, proof)
	if err != nil {
		writeError(w, http.StatusConflict, "mutation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"allowed": ok, "global_time": globalTime})
}

func (a *App) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	messageName := r.URL.Query().Get("message_name")
	if messageName == "" {
		writeError(w, http.StatusBadRequest, "missing_params", "message_name is required")
		return
	}
	globalTime := a.community.GlobalTime()
	policy, proofs := a.policy.GetResolutionPolicy(messageName, globalTime, timelinemodel.ResolutionLinear)
	writeJSON(w, http.StatusOK, map[string]interface{}{"policy": policy.String(), "proof_count": len(proofs)})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := a.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                 "ok",
		"members_tracked":        stats.MembersTracked,
		"policy_changes_tracked": stats.PolicyChangesTracked,
		"last_check_allowed":     stats.LastCheckAllowed,
	})
}
