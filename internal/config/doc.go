// Package config loads the server configuration. Default() gives the
// baseline, Load overlays a JSON or YAML file and FromEnv overlays EDU_*
// variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/edu-events.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg})
package config
