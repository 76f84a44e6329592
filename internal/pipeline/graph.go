package pipeline

import (
	"errors"
	"fmt"
	"sort"
)

// 项目类型
const (
	TypeResidential = "RESIDENTIAL"
	TypeCommercial  = "COMMERCIAL"
	TypeIndustrial  = "INDUSTRIAL"
	TypeRural       = "RURAL"
	TypeMaintenance = "MAINTENANCE"
)

// 阶段分组（phase）标签
const (
	PhaseContracting  = "Contracting"
	PhaseHomologation = "Homologation"
	PhaseProcurement  = "Procurement"
	PhaseExecution    = "Execution"
)

// Stage 阶段定义：进入字段与离开字段之间的一段流程
type Stage struct {
	ID        string          `json:"id"`
	Phase     string          `json:"phase"`
	Label     string          `json:"label"`
	AppliesTo map[string]bool `json:"-"`
	Entry     Field           `json:"entry"`
	Exit      Field           `json:"exit"`
	// Guard 为 true 时不计入进行中（例如整个阶段已结束）
	Guard Field `json:"guard,omitempty"`
}

// Applies 判断阶段是否适用于该项目类型
func (s Stage) Applies(projectType string) bool {
	return s.AppliesTo[projectType]
}

// Graph 有序的阶段表
type Graph struct {
	stages []Stage
}

// NewGraph 根据阶段列表构建 Graph，顺序即展示顺序
func NewGraph(stages ...Stage) *Graph {
	cp := make([]Stage, len(stages))
	copy(cp, stages)
	return &Graph{stages: cp}
}

// Stages 返回全部阶段
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.stages))
	copy(out, g.stages)
	return out
}

// StagesFor 返回适用于该项目类型的阶段；未知类型返回空列表而不是错误
func (g *Graph) StagesFor(projectType string) []Stage {
	var out []Stage
	for _, s := range g.stages {
		if s.Applies(projectType) {
			out = append(out, s)
		}
	}
	return out
}

// Knows 项目类型是否至少匹配一个阶段
func (g *Graph) Knows(projectType string) bool {
	for _, s := range g.stages {
		if s.Applies(projectType) {
			return true
		}
	}
	return false
}

// ProjectTypes 返回阶段表中出现过的全部项目类型
func (g *Graph) ProjectTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range g.stages {
		for _, t := range sortedTypes(s.AppliesTo) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Fields 返回投影需要的全部字段（身份字段 + 阶段引用的里程碑和标记）
func (g *Graph) Fields() []Field {
	seen := make(map[Field]bool)
	out := []Field{FieldID, FieldType, FieldPartnerID}
	for _, f := range out {
		seen[f] = true
	}
	add := func(f Field) {
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		out = append(out, f)
	}
	for _, s := range g.stages {
		add(s.Entry)
		add(s.Exit)
		add(s.Guard)
	}
	return out
}

// Validate 校验阶段表配置
func (g *Graph) Validate() error {
	ids := make(map[string]bool)
	for i, s := range g.stages {
		if s.ID == "" {
			return fmt.Errorf("stage #%d: empty id", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("stage %q: duplicate id", s.ID)
		}
		ids[s.ID] = true
		if s.Phase == "" || s.Label == "" {
			return fmt.Errorf("stage %q: phase and label are required", s.ID)
		}
		if s.Entry == "" || s.Exit == "" {
			return fmt.Errorf("stage %q: entry and exit fields are required", s.ID)
		}
		if s.Entry == s.Exit {
			return fmt.Errorf("stage %q: %w", s.ID, errSameEntryExit)
		}
	}
	return nil
}

var errSameEntryExit = errors.New("entry and exit reference the same field")

func typeSet(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func sortedTypes(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for t, ok := range m {
		if ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// DefaultGraph 光伏项目默认阶段表
func DefaultGraph() *Graph {
	pv := []string{TypeResidential, TypeCommercial, TypeIndustrial, TypeRural}
	all := append(append([]string{}, pv...), TypeMaintenance)

	return NewGraph(
		Stage{
			ID: "contract_formulation", Phase: PhaseContracting, Label: "Contract Formulation",
			AppliesTo: typeSet(all...), Entry: FieldContractRequest, Exit: FieldContractRelease,
		},
		Stage{
			ID: "contract_signature", Phase: PhaseContracting, Label: "Contract Signature",
			AppliesTo: typeSet(all...), Entry: FieldContractRelease, Exit: FieldContractSignature,
		},
		Stage{
			ID: "homologation_kickoff", Phase: PhaseHomologation, Label: "Documentation Kickoff",
			AppliesTo: typeSet(pv...), Entry: FieldHomologationRelease, Exit: FieldHomologationDocStart,
			Guard: FieldHomologationConcluded,
		},
		Stage{
			ID: "homologation_documentation", Phase: PhaseHomologation, Label: "Documentation",
			AppliesTo: typeSet(pv...), Entry: FieldHomologationDocStart, Exit: FieldHomologationDocEnd,
			Guard: FieldHomologationConcluded,
		},
		Stage{
			ID: "homologation_access_request", Phase: PhaseHomologation, Label: "Access Request Filing",
			AppliesTo: typeSet(pv...), Entry: FieldHomologationDocEnd, Exit: FieldHomologationAccessRequest,
			Guard: FieldHomologationConcluded,
		},
		Stage{
			ID: "homologation_access_approval", Phase: PhaseHomologation, Label: "Access Approval",
			AppliesTo: typeSet(pv...), Entry: FieldHomologationAccessRequest, Exit: FieldHomologationAccessResponse,
			Guard: FieldHomologationConcluded,
		},
		Stage{
			ID: "homologation_inspection_request", Phase: PhaseHomologation, Label: "Inspection Request Filing",
			AppliesTo: typeSet(pv...), Entry: FieldHomologationAccessResponse, Exit: FieldHomologationInspectionReq,
			Guard: FieldHomologationConcluded,
		},
		Stage{
			ID: "homologation_inspection", Phase: PhaseHomologation, Label: "Inspection",
			AppliesTo: typeSet(pv...), Entry: FieldHomologationInspectionReq, Exit: FieldHomologationInspectionDone,
			Guard: FieldHomologationConcluded,
		},
		Stage{
			ID: "procurement_order", Phase: PhaseProcurement, Label: "Purchase Order",
			AppliesTo: typeSet(pv...), Entry: FieldProcurementRelease, Exit: FieldProcurementOrder,
			Guard: FieldProcurementConcluded,
		},
		Stage{
			ID: "procurement_delivery", Phase: PhaseProcurement, Label: "Delivery",
			AppliesTo: typeSet(pv...), Entry: FieldProcurementOrder, Exit: FieldProcurementDelivery,
			Guard: FieldProcurementConcluded,
		},
		Stage{
			ID: "execution_awaiting_installation", Phase: PhaseExecution, Label: "Awaiting Installation",
			AppliesTo: typeSet(pv...), Entry: FieldProcurementDelivery, Exit: FieldExecutionStart,
			Guard: FieldExecutionConcluded,
		},
		Stage{
			ID: "execution_awaiting_mobilization", Phase: PhaseExecution, Label: "Awaiting Mobilization",
			AppliesTo: typeSet(TypeMaintenance), Entry: FieldContractSignature, Exit: FieldExecutionStart,
			Guard: FieldExecutionConcluded,
		},
		Stage{
			ID: "execution_installation", Phase: PhaseExecution, Label: "Installation",
			AppliesTo: typeSet(all...), Entry: FieldExecutionStart, Exit: FieldExecutionFinish,
			Guard: FieldExecutionConcluded,
		},
	)
}
