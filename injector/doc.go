// Package injector provides a registry-backed pipeline.Activator that builds
// components and fills in their dependencies.
//
// # Registration
//
// Components are registered by type. Register builds a fresh value for every
// activation; Provide hands construction to a factory:
//
//	inj := injector.New(injector.WithConfig(cfg), injector.WithLogger(logger))
//	inj.Inject(db, httpClient)
//	injector.Register[*Charge](inj)
//	injector.Provide(inj, func(inj *injector.Injector) (*Audit, error) {
//		return NewAudit(...), nil
//	})
//
//	b := pipeline.NewBuilder[*Order](pipeline.WithActivator(inj))
//
// # Field Injection
//
// Register populates exported fields of the new value:
//
//  1. Configuration values, selected with a dot path:
//
//     type Charge struct {
//     Currency string `config:"billing.currency"`
//     }
//
//     Each path element matches a field by name, capitalised name, upper-case
//     name, or yaml tag.
//
//  2. Injected dependencies, matched by exact type or by the type a pointer
//     field points to.
//
//  3. *slog.Logger fields not satisfied by an injected logger receive a
//     logger scoped to the component through the configured LoggerHook.
//
// Fields tagged `inject:"-"` are left alone.
//
// # Initialisation
//
// Components implementing Initializer have Init called after injection.
// An Init error fails the activation, so the pipeline invocation ends with a
// *pipeline.ActivationError wrapping it.
package injector
