package routes

import (
	"strconv"
	"strings"

	"imgcruncher/metrics"
	"imgcruncher/validation"
)

// cacheKey identifies a crunch by its source (image payload or URL) and
// options. The source is hashed so multi-megabyte payloads stay out of keys.
func cacheKey(source string, params *validation.CrunchContext) string {
	var builder strings.Builder
	builder.WriteString(metrics.HashInput(source))
	builder.WriteString(";quality=")
	builder.WriteString(strconv.FormatFloat(params.Quality, 'f', -1, 64))
	builder.WriteString(";maxWidth=")
	builder.WriteString(strconv.Itoa(params.MaxWidth))
	builder.WriteString(";maxHeight=")
	builder.WriteString(strconv.Itoa(params.MaxHeight))
	builder.WriteString(";interpolation=")
	builder.WriteString(strconv.Itoa(int(params.Interpolation)))
	return builder.String()
}
