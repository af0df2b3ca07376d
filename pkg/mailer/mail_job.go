package mailer

// MailJob is the JSON payload put on the mail queue.
type MailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}
