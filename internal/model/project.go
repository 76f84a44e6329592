package model

import (
	"errors"
	"fmt"
	"time"
)

// Project 项目文档，JSON 结构即 projects.doc 中存储的结构
type Project struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	PartnerID    string       `json:"partnerId"`
	Contracting  Contracting  `json:"contracting"`
	Homologation Homologation `json:"homologation"`
	Procurement  Procurement  `json:"procurement"`
	Execution    Execution    `json:"execution"`
	UpdatedAt    time.Time    `json:"-"`
}

type Contracting struct {
	RequestDate   *time.Time `json:"requestDate,omitempty"`
	ReleaseDate   *time.Time `json:"releaseDate,omitempty"`
	SignatureDate *time.Time `json:"signatureDate,omitempty"`
}

type Homologation struct {
	Concluded                  bool       `json:"concluded"`
	ReleaseDate                *time.Time `json:"releaseDate,omitempty"`
	DocumentationStartDate     *time.Time `json:"documentationStartDate,omitempty"`
	DocumentationEndDate       *time.Time `json:"documentationEndDate,omitempty"`
	AccessRequestDate          *time.Time `json:"accessRequestDate,omitempty"`
	AccessResponseDate         *time.Time `json:"accessResponseDate,omitempty"`
	InspectionRequestDate      *time.Time `json:"inspectionRequestDate,omitempty"`
	InspectionEffectuationDate *time.Time `json:"inspectionEffectuationDate,omitempty"`
}

type Procurement struct {
	Concluded    bool       `json:"concluded"`
	ReleaseDate  *time.Time `json:"releaseDate,omitempty"`
	OrderDate    *time.Time `json:"orderDate,omitempty"`
	DeliveryDate *time.Time `json:"deliveryDate,omitempty"`
}

type Execution struct {
	Concluded  bool       `json:"concluded"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	FinishDate *time.Time `json:"finishDate,omitempty"`
}

// ErrInvalidProject 文档缺少必填字段
var ErrInvalidProject = errors.New("invalid project document")

// Validate 检查身份字段；knownType 为 nil 时不校验类型
func (p *Project) Validate(knownType func(string) bool) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidProject)
	case p.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidProject)
	case p.PartnerID == "":
		return fmt.Errorf("%w: partnerId is required", ErrInvalidProject)
	}
	if knownType != nil && !knownType(p.Type) {
		return fmt.Errorf("%w: unknown project type %q", ErrInvalidProject, p.Type)
	}
	return nil
}

// ProjectUpdatedPayload project.updated 事件内容
type ProjectUpdatedPayload struct {
	EventID   string    `json:"event_id"`
	ProjectID string    `json:"project_id"`
	PartnerID string    `json:"partner_id"`
	Type      string    `json:"type"`
	UpdatedAt time.Time `json:"updated_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// RoutingKeyProjectUpdated 项目文档写入后发布的事件
const RoutingKeyProjectUpdated = "project.updated"
