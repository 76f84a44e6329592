package pipeline

import "strings"

// Field 项目文档中的字段路径（点分隔，如 contracting.requestDate）
type Field string

// 身份字段
const (
	FieldID        Field = "id"
	FieldType      Field = "type"
	FieldPartnerID Field = "partnerId"
)

// 合同阶段
const (
	FieldContractRequest   Field = "contracting.requestDate"
	FieldContractRelease   Field = "contracting.releaseDate"
	FieldContractSignature Field = "contracting.signatureDate"
)

// 并网审批（homologation）阶段
const (
	FieldHomologationConcluded      Field = "homologation.concluded"
	FieldHomologationRelease        Field = "homologation.releaseDate"
	FieldHomologationDocStart       Field = "homologation.documentationStartDate"
	FieldHomologationDocEnd         Field = "homologation.documentationEndDate"
	FieldHomologationAccessRequest  Field = "homologation.accessRequestDate"
	FieldHomologationAccessResponse Field = "homologation.accessResponseDate"
	FieldHomologationInspectionReq  Field = "homologation.inspectionRequestDate"
	FieldHomologationInspectionDone Field = "homologation.inspectionEffectuationDate"
)

// 采购阶段
const (
	FieldProcurementConcluded Field = "procurement.concluded"
	FieldProcurementRelease   Field = "procurement.releaseDate"
	FieldProcurementOrder     Field = "procurement.orderDate"
	FieldProcurementDelivery  Field = "procurement.deliveryDate"
)

// 施工阶段
const (
	FieldExecutionConcluded Field = "execution.concluded"
	FieldExecutionStart     Field = "execution.startDate"
	FieldExecutionFinish    Field = "execution.finishDate"
)

// Path 返回字段的路径片段
func (f Field) Path() []string {
	return strings.Split(string(f), ".")
}

func (f Field) String() string {
	return string(f)
}
