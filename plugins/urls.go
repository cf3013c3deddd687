package plugins

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"cssmc/css"
	"cssmc/plugin"
)

var rewriteURLsEntry = Entry{
	Name:        "rewrite-urls",
	Description: "prefixes relative url() and @import targets",
	Stages:      plugin.NewStageSet(plugin.StagePostResolve, plugin.StagePostBundle),
	Factory:     newRewriteURLs,
}

func newRewriteURLs(log *zap.Logger, options map[string]string) (plugin.TransformFunc, error) {
	if err := checkOptions(options, "prefix"); err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(options["prefix"])
	if prefix == "" {
		return nil, errors.New("option prefix is required")
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	return func(_ context.Context, _ plugin.Stage, sheet *css.Stylesheet) (*css.Stylesheet, error) {
		var count int
		sheet.RewriteURLs(func(original string) string {
			if !isRelativeURL(original) {
				return original
			}
			count++
			return prefix + strings.TrimPrefix(original, "./")
		})
		log.Debug("URLs rewritten", zap.String("module", sheet.Source), zap.Int("count", count))
		return sheet, nil
	}, nil
}

func isRelativeURL(s string) bool {
	if s == "" || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "#") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
