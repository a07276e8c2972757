// Package extension defines the typed extension points plugins contribute to.
//
// # Overview
//
// A Point is a name-keyed registry of one capability kind. The plugin manager
// owns six of them:
//
//	TemplateProcessor   - rewrites raw content, run as a priority-ordered pipeline
//	TemplateValidator   - reports errors and warnings for a template
//	TemplateTransformer - rewrites a whole template
//	MarketplaceHook     - reacts to marketplace install/publish/update
//	ContextProvider     - contributes variables to the template context
//	FileGenerator       - produces files from a template
//
// Every extension has a Name and a Description. Extensions implementing
// Prioritized are ordered by GetSorted, highest priority first; equal
// priorities keep registration order.
//
// # Usage Example
//
//	processors := extension.NewPoint[extension.TemplateProcessor]("processors")
//	processors.Register(extension.NewProcessor(
//		extension.Info{ExtName: "upper", ExtPriority: 10},
//		func(ctx context.Context, content string, _ extension.TemplateContext) (string, error) {
//			return strings.ToUpper(content), nil
//		},
//	))
//
//	for _, p := range processors.GetSorted() {
//		content, _ = p.Process(ctx, content, tctx)
//	}
//
// # Thread Safety
//
// Points are safe for concurrent use.
package extension
