package plugins

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"cssmc/css"
	"cssmc/plugin"
)

var bannerEntry = Entry{
	Name:        "banner",
	Description: `adds ":root { --build-banner: <text> }" to the bundle`,
	Stages:      plugin.NewStageSet(plugin.StagePostBundle),
	Factory:     newBanner,
}

// BannerProperty is the custom property carrying banner text.
const BannerProperty = "--build-banner"

func newBanner(log *zap.Logger, options map[string]string) (plugin.TransformFunc, error) {
	if err := checkOptions(options, "text"); err != nil {
		return nil, err
	}
	text := options["text"]
	if text == "" {
		return nil, errors.New("option text is required")
	}

	return func(_ context.Context, _ plugin.Stage, sheet *css.Stylesheet) (*css.Stylesheet, error) {
		rule := &css.Rule{
			Selector:     ":root",
			Declarations: []css.Declaration{{Property: BannerProperty, Value: css.Quote(text)}},
		}
		// @charset and @import must stay in front
		pos := 0
		for pos < len(sheet.Items) {
			at := sheet.Items[pos].AtRule
			if at == nil || (at.Name != "charset" && at.Name != "import") {
				break
			}
			pos++
		}
		sheet.Items = append(sheet.Items[:pos], append([]css.Item{{Rule: rule}}, sheet.Items[pos:]...)...)
		log.Debug("Banner added", zap.String("module", sheet.Source))
		return sheet, nil
	}, nil
}
