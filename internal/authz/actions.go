package authz

// Action names checked at the workflow boundary. They are the keys of the
// permission table.
const (
	ActionParcelRegister        = "parcel.register"
	ActionParcelRecordPossession = "parcel.record_possession"

	ActionSIACreate          = "sia.create"
	ActionSIAPublish         = "sia.publish"
	ActionSIAScheduleHearing = "sia.schedule_hearing"
	ActionSIACompleteHearing = "sia.complete_hearing"
	ActionSIAGenerateReport  = "sia.generate_report"
	ActionSIAClose           = "sia.close"

	ActionNotificationCreate      = "notification.create"
	ActionNotificationPublish     = "notification.publish"
	ActionNotificationOpenWindow  = "notification.open_window"
	ActionNotificationCloseWindow = "notification.close_window"
	ActionNotificationArchive     = "notification.archive"

	ActionObjectionSubmit  = "objection.submit"
	ActionObjectionReview  = "objection.review"
	ActionObjectionResolve = "objection.resolve"

	ActionValuationCompute = "valuation.compute"

	ActionAwardDraft    = "award.draft"
	ActionAwardApprove  = "award.approve"
	ActionAwardDisburse = "award.disburse"
	ActionAwardVoid     = "award.void"

	ActionSchemeCreate     = "scheme.create"
	ActionSchemePublish    = "scheme.publish"
	ActionSchemeClose      = "scheme.close"
	ActionPropertyRegister = "property.register"

	ActionApplicationSubmit = "application.submit"
	ActionApplicationVerify = "application.verify"
	ActionApplicationReject = "application.reject"

	ActionDrawConduct = "draw.conduct"
	ActionDrawReset   = "draw.reset"

	ActionRequestSubmit  = "service_request.submit"
	ActionRequestReview  = "service_request.review"
	ActionRequestResolve = "service_request.resolve"
)

// Actions lists every checked action.
var Actions = []string{
	ActionParcelRegister, ActionParcelRecordPossession,
	ActionSIACreate, ActionSIAPublish, ActionSIAScheduleHearing, ActionSIACompleteHearing,
	ActionSIAGenerateReport, ActionSIAClose,
	ActionNotificationCreate, ActionNotificationPublish, ActionNotificationOpenWindow,
	ActionNotificationCloseWindow, ActionNotificationArchive,
	ActionObjectionSubmit, ActionObjectionReview, ActionObjectionResolve,
	ActionValuationCompute,
	ActionAwardDraft, ActionAwardApprove, ActionAwardDisburse, ActionAwardVoid,
	ActionSchemeCreate, ActionSchemePublish, ActionSchemeClose, ActionPropertyRegister,
	ActionApplicationSubmit, ActionApplicationVerify, ActionApplicationReject,
	ActionDrawConduct, ActionDrawReset,
	ActionRequestSubmit, ActionRequestReview, ActionRequestResolve,
}
