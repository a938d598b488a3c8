package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/domain"
	"guildline/internal/engine"
)

type missionOutput struct {
	Body domain.Mission `json:"body"`
}

type missionPath struct {
	ID string `path:"id"`
}

// registerTransition exposes one mission transition as POST /missions/{id}/<action>.
func registerTransition(api huma.API, e engine.Engine, action, summary string, op func(engine.Engine, context.Context, engine.Requester, string) (domain.Mission, error)) {
	huma.Register(api, huma.Operation{
		OperationID: action + "-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/" + action,
		Summary:     summary,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *missionPath) (*missionOutput, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		m, err := op(e, ctx, req, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &missionOutput{Body: m}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*missionOutput, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		m, err := e.CreateMission(ctx, req, engine.MissionInput{
			Description: input.Body.Description,
			Details:     input.Body.Details,
			PaymentType: domain.PaymentType(input.Body.PaymentType),
			CoinsAmount: input.Body.CoinsAmount,
			AssignedTo:  input.Body.AssignedTo,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:"CREATED,PUBLISHED,REJECTED,ASSIGNED,COMPLETED,PAID"`
		PaymentType string `query:"payment_type" enum:"COINS,BLOOD_DEBT,BLOOD_DEBT_COLLECTION"`
		Scope       string `query:"scope" enum:"created,assigned,available"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedMissions `json:"body"`
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		p, limit, perr := page(input.Limit, input.Cursor)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListMissions(ctx, req, engine.MissionQuery{
			Status:      domain.MissionStatus(input.Status),
			PaymentType: domain.PaymentType(input.PaymentType),
			Scope:       engine.MissionScope(input.Scope),
			Page:        p,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedMissions{Items: []domain.MissionView{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit-1].CreatedAt, items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedMissions `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*struct {
		Body domain.MissionView `json:"body"`
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		v, err := e.GetMission(ctx, req, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.MissionView `json:"body"`
		}{Body: v}, nil
	})

	registerTransition(api, e, "publish", "Approve a mission", engine.Engine.PublishMission)
	registerTransition(api, e, "reject", "Reject a mission", engine.Engine.RejectMission)
	registerTransition(api, e, "assign", "Take a published mission", engine.Engine.AssignMission)
	registerTransition(api, e, "reject-evidence", "Send a completed mission back to its assignee", engine.Engine.RejectEvidence)
	registerTransition(api, e, "pay", "Pay a completed mission", engine.Engine.PayMission)

	maxEvidence := int64(0)
	if e.Config != nil {
		maxEvidence = e.Config.Evidence.MaxBytes + 64<<10
	}
	huma.Register(api, huma.Operation{
		OperationID:  "complete-mission",
		Method:       http.MethodPost,
		Path:         "/missions/{id}/evidence",
		Summary:      "Upload evidence and complete a mission",
		Description:  "The request body is the raw evidence file. Content-Type is sniffed when absent.",
		MaxBodyBytes: maxEvidence,
		Errors:       mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID          string `path:"id"`
		Filename    string `query:"filename"`
		ContentType string `header:"Content-Type"`
		RawBody     []byte
	}) (*missionOutput, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		m, err := e.CompleteMission(ctx, req, input.ID, engine.Evidence{
			Filename:    input.Filename,
			ContentType: input.ContentType,
			Data:        input.RawBody,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission-evidence",
		Method:      http.MethodGet,
		Path:        "/missions/{id}/evidence",
		Summary:     "Download mission evidence",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		rc, file, err := e.OpenEvidence(ctx, req, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, handleError(ctx, fmt.Errorf("read evidence: %w", err))
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        file.ContentType,
			ContentDisposition: mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}),
			Body:               data,
		}, nil
	})
}
