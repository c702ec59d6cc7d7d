package middleware

import (
	"net/url"

	"github.com/gin-gonic/gin"
)

// PollutedQueryKey and PollutedFormKey hold the original multi-valued
// parameters removed by ParameterPollution.
const (
	PollutedQueryKey = "polluted_query"
	PollutedFormKey  = "polluted_form"
)

// ParameterPollution collapses repeated query and urlencoded body parameters
// to their last value, so handlers reading a single value cannot be fed an
// array. Parameters named in allow keep all their values. The collapsed
// originals are kept on the context.
func ParameterPollution(allow ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowed[a] = true
	}
	return func(c *gin.Context) {
		q := c.Request.URL.Query()
		if polluted := collapse(q, allowed); len(polluted) > 0 {
			c.Request.URL.RawQuery = q.Encode()
			c.Set(PollutedQueryKey, polluted)
		}
		if c.Request.PostForm != nil {
			if polluted := collapse(c.Request.PostForm, allowed); len(polluted) > 0 {
				c.Set(PollutedFormKey, polluted)
				// Form is the merge of query and body; rebuild it lazily.
				c.Request.Form = nil
			}
		}
		c.Next()
	}
}

// collapse keeps the last value of each repeated key in v and returns the
// removed originals.
func collapse(v url.Values, allowed map[string]bool) url.Values {
	var polluted url.Values
	for k, vals := range v {
		if len(vals) < 2 || allowed[k] {
			continue
		}
		if polluted == nil {
			polluted = url.Values{}
		}
		polluted[k] = vals
		v[k] = vals[len(vals)-1:]
	}
	return polluted
}

// PollutedQuery returns the original values of query parameters that were
// collapsed for this request.
func PollutedQuery(c *gin.Context) url.Values {
	if v, ok := c.Get(PollutedQueryKey); ok {
		return v.(url.Values)
	}
	return nil
}
