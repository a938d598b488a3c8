package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"

	"guildline/internal/domain"
	"guildline/internal/engine/lifecycle"
	"guildline/internal/filestore"
	"guildline/internal/observability"
	"guildline/internal/repo"
)

// MissionInput is a mission creation request.
type MissionInput struct {
	Description string
	Details     string
	PaymentType domain.PaymentType
	CoinsAmount *int64
	// AssignedTo names the debtor when collecting a blood debt.
	AssignedTo string
}

func (e Engine) CreateMission(ctx context.Context, req Requester, in MissionInput) (domain.Mission, error) {
	return e.apply(ctx, "create", req, func(ctx context.Context, tx *sql.Tx, req Requester, actor domain.Actor, now string) (lifecycle.Outcome, error) {
		var collectable *domain.BloodDebt
		if in.PaymentType == domain.PaymentBloodDebtCollection && in.AssignedTo != "" && in.AssignedTo != req.ActorID {
			d, err := e.Repo.CollectableDebtTx(ctx, tx, in.AssignedTo, req.ActorID)
			if err == nil {
				collectable = &d
			} else if !errors.Is(err, repo.ErrNotFound) {
				return lifecycle.Outcome{}, err
			}
		}
		draft := lifecycle.Draft{
			ID:          e.newID(),
			DebtID:      e.newID(),
			Description: in.Description,
			Details:     in.Details,
			PaymentType: in.PaymentType,
			CoinsAmount: in.CoinsAmount,
			AssignedTo:  in.AssignedTo,
		}
		out, err := lifecycle.Create(req, draft, lifecycle.RulesFrom(e.Config), actor, collectable, now)
		if err != nil {
			out.Mission.PaymentType = in.PaymentType
		}
		return out, err
	})
}

func (e Engine) PublishMission(ctx context.Context, req Requester, missionID string) (domain.Mission, error) {
	return e.apply(ctx, "publish", req, e.onMission(missionID, lifecycle.Publish))
}

func (e Engine) RejectMission(ctx context.Context, req Requester, missionID string) (domain.Mission, error) {
	return e.apply(ctx, "reject", req, e.onMission(missionID, lifecycle.Reject))
}

func (e Engine) AssignMission(ctx context.Context, req Requester, missionID string) (domain.Mission, error) {
	return e.apply(ctx, "assign", req, e.onMission(missionID, lifecycle.Assign))
}

// Evidence is an uploaded proof file. A ContentType that is empty or not
// accepted is replaced by the sniffed type when that one is accepted.
type Evidence struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (e Engine) validateEvidence(ev *Evidence) error {
	if len(ev.Data) == 0 {
		return domain.Validation("evidence is required").WithDetails(map[string]any{"field": "evidence"})
	}
	if int64(len(ev.Data)) > e.Config.Evidence.MaxBytes {
		return domain.Validation("evidence exceeds %d bytes", e.Config.Evidence.MaxBytes).
			WithDetails(map[string]any{"field": "evidence", "size": len(ev.Data)})
	}
	if !e.Config.AcceptsEvidence(ev.ContentType) {
		// Generic or missing headers fall back to the content itself.
		if sniffed := http.DetectContentType(ev.Data); ev.ContentType == "" || e.Config.AcceptsEvidence(sniffed) {
			ev.ContentType = sniffed
		}
	}
	if !e.Config.AcceptsEvidence(ev.ContentType) {
		return domain.Validation("evidence type %s is not accepted", ev.ContentType).
			WithDetails(map[string]any{"field": "evidence", "content_type": ev.ContentType, "accepted": e.Config.Evidence.AcceptedTypes})
	}
	if ev.Filename == "" {
		ev.Filename = "evidence"
	}
	return nil
}

// CompleteMission stores the evidence and moves the mission to COMPLETED.
// The stored file is removed again if the transition does not commit.
func (e Engine) CompleteMission(ctx context.Context, req Requester, missionID string, ev Evidence) (domain.Mission, error) {
	if err := e.validateEvidence(&ev); err != nil {
		observability.RecordTransition("complete", "unknown", string(domain.CodeOf(err)))
		return domain.Mission{}, err
	}
	if e.Files == nil {
		return domain.Mission{}, errors.New("evidence store not configured")
	}
	file, err := e.Files.Put(ctx, ev.Data, filestore.Meta{Filename: ev.Filename, ContentType: ev.ContentType})
	if err != nil {
		return domain.Mission{}, fmt.Errorf("store evidence: %w", err)
	}
	m, err := e.apply(ctx, "complete", req, e.onMission(missionID, func(req Requester, s lifecycle.Subject, now string) (lifecycle.Outcome, error) {
		return lifecycle.Complete(req, s, file.Ref, now)
	}))
	if err != nil {
		if derr := e.Files.Delete(context.WithoutCancel(ctx), file.Ref); derr != nil {
			e.Logger.Error().Err(derr).Str("evidence_id", file.Ref).Msg("discard evidence")
		}
		return domain.Mission{}, err
	}
	return m, nil
}

func (e Engine) RejectEvidence(ctx context.Context, req Requester, missionID string) (domain.Mission, error) {
	return e.apply(ctx, "reject_evidence", req, e.onMission(missionID, lifecycle.RejectEvidence))
}

func (e Engine) PayMission(ctx context.Context, req Requester, missionID string) (domain.Mission, error) {
	return e.apply(ctx, "pay", req, e.onMission(missionID, lifecycle.Pay))
}

func canSee(req Requester, m domain.Mission) bool {
	if req.IsAdmin() || m.Status == domain.MissionPublished || m.CreatedBy == req.ActorID {
		return true
	}
	return m.AssignedTo != nil && *m.AssignedTo == req.ActorID
}

// GetMission returns a mission with actor names. Assassins only see
// published missions and the ones they are party to.
func (e Engine) GetMission(ctx context.Context, req Requester, missionID string) (domain.MissionView, error) {
	v, err := e.Repo.GetMissionView(ctx, missionID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !canSee(req, v.Mission)) {
		return domain.MissionView{}, domain.NotFound("mission", missionID)
	}
	return v, err
}

// MissionScope narrows a listing relative to the requester.
type MissionScope string

const (
	ScopeVisible   MissionScope = ""
	ScopeCreated   MissionScope = "created"
	ScopeAssigned  MissionScope = "assigned"
	ScopeAvailable MissionScope = "available"
)

type MissionQuery struct {
	Status      domain.MissionStatus
	PaymentType domain.PaymentType
	Scope       MissionScope
	repo.Page
}

func (e Engine) ListMissions(ctx context.Context, req Requester, q MissionQuery) ([]domain.MissionView, error) {
	f := repo.MissionFilters{Status: q.Status, PaymentType: q.PaymentType, Page: q.Page}
	switch q.Scope {
	case ScopeVisible:
		if !req.IsAdmin() {
			f.VisibleTo = req.ActorID
		}
	case ScopeCreated:
		f.CreatedBy = req.ActorID
	case ScopeAssigned:
		f.AssignedTo = req.ActorID
	case ScopeAvailable:
		f.Status = domain.MissionPublished
		f.ExcludeCreatedBy = req.ActorID
	default:
		return nil, domain.Validation("unknown scope %q", q.Scope)
	}
	return e.Repo.ListMissions(ctx, f)
}

// OpenEvidence streams the evidence of a mission to its creator, its
// assignee or an administrator.
func (e Engine) OpenEvidence(ctx context.Context, req Requester, missionID string) (io.ReadCloser, domain.EvidenceFile, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.EvidenceFile{}, domain.NotFound("mission", missionID)
	}
	if err != nil {
		return nil, domain.EvidenceFile{}, err
	}
	party := m.CreatedBy == req.ActorID || (m.AssignedTo != nil && *m.AssignedTo == req.ActorID)
	if !req.IsAdmin() && !party {
		return nil, domain.EvidenceFile{}, domain.NotFound("mission", missionID)
	}
	if m.EvidenceID == nil || e.Files == nil {
		return nil, domain.EvidenceFile{}, domain.NotFound("evidence", missionID)
	}
	rc, f, err := e.Files.Open(ctx, *m.EvidenceID)
	if errors.Is(err, filestore.ErrNotFound) {
		return nil, f, domain.NotFound("evidence", *m.EvidenceID)
	}
	return rc, f, err
}
