package metrics

const (
	LabelKind   = "kind"
	LabelStatus = "status"
)

const (
	namespaceNotary = "notary"
)

const (
	subsystemDriver   = "driver"
	subsystemPipeline = "pipeline"
)
