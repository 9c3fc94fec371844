package repair

import (
	"bytes"
	"context"
	"fmt"

	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
)

// showcasePass swaps in the first showcase set whose fingerprint matches.
// The set is validated like model output; a set that does not validate
// cleanly is skipped.
func showcasePass(_ context.Context, c *Context) error {
	for i := range c.Rules.Showcases {
		s := &c.Rules.Showcases[i]
		if !s.matches(c.In) {
			continue
		}
		target := "showcase " + s.ID
		raw, err := s.raw(c.Plan.MainAttr)
		if err != nil {
			c.reject(target, "", err)
			continue
		}
		p, issues, err := validate.New(c.Limits).Validate(c.In, raw)
		if err != nil {
			c.reject(target, "", err)
			continue
		}
		if len(issues) > 0 {
			c.reject(target, "", fmt.Errorf("%d validation issue(s), first: %s", len(issues), issues[0]))
			continue
		}
		if samePlan(c.Plan, p) {
			return nil
		}
		*c.Plan = *p
		c.Note(target, "applied %d rows and %d buffs", len(p.Details), len(p.Buffs))
		return nil
	}
	return nil
}

func samePlan(a, b *plan.Plan) bool {
	x, err := plan.Encode(a)
	if err != nil {
		return false
	}
	y, err := plan.Encode(b)
	return err == nil && bytes.Equal(x, y)
}
