package handler

import (
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
	"github.com/kursadbilgin/bordereau-flow/internal/sla"
)

type batchResponse struct {
	ID                   string     `json:"id"`
	ClientReference      string     `json:"clientReference"`
	ReceptionDate        *time.Time `json:"receptionDate,omitempty"`
	ContractualDelayDays *int       `json:"contractualDelayDays,omitempty"`
	Status               string     `json:"status"`
	AssignedHandlerID    *string    `json:"assignedHandlerId,omitempty"`
	ScanStartedAt        *time.Time `json:"scanStartedAt,omitempty"`
	ScanEndedAt          *time.Time `json:"scanEndedAt,omitempty"`
	ClosedAt             *time.Time `json:"closedAt,omitempty"`
	PaymentOrderRef      *string    `json:"paymentOrderRef,omitempty"`
	Archived             bool       `json:"archived"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

type documentResponse struct {
	ID                string    `json:"id"`
	BatchID           string    `json:"batchId"`
	State             string    `json:"state"`
	AssignedHandlerID *string   `json:"assignedHandlerId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type paymentOrderResponse struct {
	Reference  string     `json:"reference"`
	BatchID    string     `json:"batchId"`
	Executed   bool       `json:"executed"`
	ExecutedAt *time.Time `json:"executedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// slaResponse omits the day counts when the band is UNDEFINED.
type slaResponse struct {
	ElapsedDays   *int   `json:"elapsedDays,omitempty"`
	RemainingDays *int   `json:"remainingDays,omitempty"`
	Band          string `json:"band"`
}

type batchViewResponse struct {
	batchResponse
	Documents    []documentResponse    `json:"documents"`
	PaymentOrder *paymentOrderResponse `json:"paymentOrder,omitempty"`
	SLA          slaResponse           `json:"sla"`
	NextStatuses []string              `json:"nextStatuses"`
}

type reconcileResponse struct {
	BatchID string `json:"batchId"`
	Changed bool   `json:"changed"`
	Status  string `json:"status"`
	Rule    string `json:"rule"`
}

type outcomeResponse struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type assignmentRecordResponse struct {
	ID            string    `json:"id"`
	ItemKind      string    `json:"itemKind"`
	ItemID        string    `json:"itemId"`
	FromHandlerID *string   `json:"fromHandlerId,omitempty"`
	ToHandlerID   string    `json:"toHandlerId"`
	Reason        *string   `json:"reason,omitempty"`
	Reassignment  bool      `json:"reassignment"`
	ActorID       string    `json:"actorId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type workloadResponse struct {
	HandlerID       string  `json:"handlerId"`
	Active          int     `json:"active"`
	Capacity        int     `json:"capacity"`
	Overloaded      bool    `json:"overloaded"`
	UtilizationRate float64 `json:"utilizationRate"`
}

type assignResponse struct {
	Record         assignmentRecordResponse `json:"record"`
	Workload       workloadResponse         `json:"workload"`
	Emergency      bool                     `json:"emergency"`
	Reconcile      *reconcileResponse       `json:"reconcile,omitempty"`
	ReconcileError string                   `json:"reconcileError,omitempty"`
}

type transitionLogResponse struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId"`
	ActorRole string    `json:"actorRole"`
	CreatedAt time.Time `json:"createdAt"`
}

type historyResponse struct {
	Transitions []transitionLogResponse    `json:"transitions"`
	Assignments []assignmentRecordResponse `json:"assignments"`
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}
	return batchResponse{
		ID:                   b.ID,
		ClientReference:      b.ClientReference,
		ReceptionDate:        b.ReceptionDate,
		ContractualDelayDays: b.ContractualDelayDays,
		Status:               b.Status.String(),
		AssignedHandlerID:    b.AssignedHandlerID,
		ScanStartedAt:        b.ScanStartedAt,
		ScanEndedAt:          b.ScanEndedAt,
		ClosedAt:             b.ClosedAt,
		PaymentOrderRef:      b.PaymentOrderRef,
		Archived:             b.Archived,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func toDocumentResponse(d domain.Document) documentResponse {
	return documentResponse{
		ID:                d.ID,
		BatchID:           d.BatchID,
		State:             d.State.String(),
		AssignedHandlerID: d.AssignedHandlerID,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func toDocumentResponses(docs []domain.Document) []documentResponse {
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	return out
}

func toPaymentOrderResponse(p *domain.PaymentOrder) *paymentOrderResponse {
	if p == nil {
		return nil
	}
	return &paymentOrderResponse{
		Reference:  p.Reference,
		BatchID:    p.BatchID,
		Executed:   p.Executed,
		ExecutedAt: p.ExecutedAt,
		CreatedAt:  p.CreatedAt,
	}
}

func toSLAResponse(r sla.Result) slaResponse {
	resp := slaResponse{Band: r.Band.String()}
	if r.Defined() {
		elapsed, remaining := r.ElapsedDays, r.RemainingDays
		resp.ElapsedDays = &elapsed
		resp.RemainingDays = &remaining
	}
	return resp
}

func toBatchViewResponse(v *service.BatchView) batchViewResponse {
	next := make([]string, 0, len(v.Next))
	for _, s := range v.Next {
		next = append(next, s.String())
	}
	return batchViewResponse{
		batchResponse: toBatchResponse(&v.Batch),
		Documents:     toDocumentResponses(v.Documents),
		PaymentOrder:  toPaymentOrderResponse(v.PaymentOrder),
		SLA:           toSLAResponse(v.SLA),
		NextStatuses:  next,
	}
}

func toReconcileResponse(r *service.ReconcileResult) *reconcileResponse {
	if r == nil {
		return nil
	}
	return &reconcileResponse{
		BatchID: r.BatchID,
		Changed: r.Changed,
		Status:  r.Status.String(),
		Rule:    string(r.Rule),
	}
}

func toOutcomeResponses(outcomes []service.ItemOutcome) []outcomeResponse {
	out := make([]outcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, outcomeResponse{ID: o.ID, OK: o.OK(), Status: o.Status, Error: errorMessage(o.Err)})
	}
	return out
}

func toAssignmentRecordResponse(r domain.AssignmentRecord) assignmentRecordResponse {
	return assignmentRecordResponse{
		ID:            r.ID,
		ItemKind:      r.Item.Kind.String(),
		ItemID:        r.Item.ID,
		FromHandlerID: r.FromHandlerID,
		ToHandlerID:   r.ToHandlerID,
		Reason:        r.Reason,
		Reassignment:  r.Reassignment,
		ActorID:       r.ActorID,
		CreatedAt:     r.CreatedAt,
	}
}

func toWorkloadResponse(w domain.Workload) workloadResponse {
	return workloadResponse{
		HandlerID:       w.HandlerID,
		Active:          w.Active,
		Capacity:        w.Capacity,
		Overloaded:      w.Overloaded,
		UtilizationRate: w.UtilizationRate(),
	}
}

func toAssignResponse(r *service.AssignResult) assignResponse {
	return assignResponse{
		Record:         toAssignmentRecordResponse(r.Record),
		Workload:       toWorkloadResponse(r.Workload),
		Emergency:      r.Emergency,
		Reconcile:      toReconcileResponse(r.Reconcile),
		ReconcileError: errorMessage(r.ReconcileErr),
	}
}

func toHistoryResponse(h *service.BatchHistory) historyResponse {
	transitions := make([]transitionLogResponse, 0, len(h.Transitions))
	for _, e := range h.Transitions {
		transitions = append(transitions, transitionLogResponse{
			ID:        e.ID,
			From:      e.From.String(),
			To:        e.To.String(),
			ActorID:   e.ActorID,
			ActorRole: e.ActorRole.String(),
			CreatedAt: e.CreatedAt,
		})
	}
	assignments := make([]assignmentRecordResponse, 0, len(h.Assignments))
	for _, r := range h.Assignments {
		assignments = append(assignments, toAssignmentRecordResponse(r))
	}
	return historyResponse{Transitions: transitions, Assignments: assignments}
}
