package thread

import "github.com/nhle/thread-reply/internal/model"

// BuildHeaders derives the threading headers of a reply to rec: the
// reply names rec as its parent and appends it to rec's references.
func BuildHeaders(rec model.ThreadRecord) (model.ReplyHeaders, error) {
	if rec.MessageID == "" {
		return model.ReplyHeaders{}, &ValidationError{
			Field:  "message id",
			Reason: "selected message has no Message-ID",
		}
	}

	refs := make([]string, 0, len(rec.References)+1)
	refs = append(refs, rec.References...)
	refs = append(refs, rec.MessageID)

	return model.ReplyHeaders{
		InReplyTo:  rec.MessageID,
		References: refs,
	}, nil
}
