package app

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

// lastLearnTimeLayout uses a literal '+' between date and time. The platform
// rejects submissions with a space there, URL-encoded or not.
const lastLearnTimeLayout = "2006-01-02+15:04:05"

// ProgressCodec translates between progress events and the platform's
// scorm-style submission payload. It is pure and stateless; it never decides
// what happens after a rejection.
type ProgressCodec struct{}

type scoRecord struct {
	LessonLocation int    `json:"lesson_location"`
	SessionTime    int    `json:"session_time"`
	LastLearnTime  string `json:"last_learn_time"`
}

// Encode builds the form payload for one submission. serializeSco is a JSON
// document embedded as a string value (double-encoded on the wire), with the
// sco key emitted before last_study_sco exactly as captured.
func (ProgressCodec) Encode(course domain.Course, ev domain.ProgressEvent) (url.Values, error) {
	if course.UserCourseID == "" {
		return nil, fmt.Errorf("encode progress: missing user course id")
	}
	sco := course.Sco
	if sco == "" {
		sco = domain.DefaultSco
	}

	key, err := json.Marshal(sco)
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	rec, err := json.Marshal(scoRecord{
		LessonLocation: ev.LessonLocation,
		SessionTime:    ev.SessionTime,
		LastLearnTime:  ev.Timestamp.Format(lastLearnTimeLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}

	var doc strings.Builder
	doc.WriteByte('{')
	doc.Write(key)
	doc.WriteByte(':')
	doc.Write(rec)
	doc.WriteString(`,"last_study_sco":`)
	doc.Write(key)
	doc.WriteByte('}')

	v := url.Values{}
	v.Set("id", course.UserCourseID)
	v.Set("serializeSco", doc.String())
	v.Set("duration", strconv.Itoa(ev.Elapsed))
	return v, nil
}

// SubmissionResult carries the raw status code of a progress submission.
// Zero means accepted.
type SubmissionResult struct {
	Status int `json:"status"`
}

func (r SubmissionResult) Accepted() bool { return r.Status == 0 }

// Decode parses the submission response body. A non-zero status is returned
// both as the result and as a ProtocolError preserving the raw code.
func (ProgressCodec) Decode(body []byte) (SubmissionResult, error) {
	var raw struct {
		Status *int `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || raw.Status == nil {
		return SubmissionResult{}, &ProtocolError{
			Kind:    ProtocolMalformedResponse,
			Message: truncateBody(body),
		}
	}
	res := SubmissionResult{Status: *raw.Status}
	if !res.Accepted() {
		return res, &ProtocolError{Kind: ProtocolRejectedByServer, Code: res.Status}
	}
	return res, nil
}

func truncateBody(b []byte) string {
	const max = 120
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
