package pipeline

import (
	"github.com/google/uuid"

	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// Envelope columns.
const (
	EnvelopeID      = "thor_id"
	EnvelopeWebsite = "thor_website"
	EnvelopeScraped = "thor_scraped"
	EnvelopeHost    = "thor_host"
	EnvelopeTask    = "thor_task"
	EnvelopeUser    = "thor_user"
	EnvelopeContent = "thor_content"
)

// envelopeStamp is the identity written into every envelope of a run.
type envelopeStamp struct {
	website string
	scraped int64
	host    string
	task    string
	user    string
	newID   func() string
}

// wrap copies each raw record and adds the envelope columns. When idKey is
// set the envelope also carries the record's id under "id". thor_content is
// the JSON of the envelope without itself; a record that cannot be encoded
// gets an empty content.
func (s envelopeStamp) wrap(raw []models.Record, idKey string) []models.Record {
	out := make([]models.Record, 0, len(raw))
	for _, r := range raw {
		env := r.Clone()
		if env == nil {
			env = models.Record{}
		}
		if idKey != "" {
			env["id"] = r[idKey]
		}
		env[EnvelopeID] = s.newID()
		env[EnvelopeWebsite] = s.website
		env[EnvelopeScraped] = s.scraped
		env[EnvelopeHost] = s.host
		env[EnvelopeTask] = s.task
		env[EnvelopeUser] = s.user

		content, err := json.MarshalString(env)
		if err != nil {
			content = ""
		}
		env[EnvelopeContent] = content
		out = append(out, env)
	}
	return out
}

func newUUID() string {
	return uuid.NewString()
}
