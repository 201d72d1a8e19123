package email

const (
	subjectLeadStatusChangedFmt = "Update on your inquiry: %s"
	subjectAccessRequestFmt     = "%s requests %s access"
)
