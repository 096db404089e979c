package rcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

func Initial() RequestContext {
	return RequestContext{
		Context: context.Background(),
		Log:     logrus.WithFields(logrus.Fields{"nocontext": true}),
	}.populate()
}

// RequestContext scopes a logger to one unit of work (one artifact on one
// backend, usually). It is passed by value and satisfies context.Context.
type RequestContext struct {
	context.Context

	Log *logrus.Entry // also stored on the context itself
}

func (c RequestContext) populate() RequestContext {
	c.Context = context.WithValue(c.Context, "ad.logger", c.Log)
	return c
}

func (c RequestContext) ReplaceLogger(log *logrus.Entry) RequestContext {
	ctx := context.WithValue(c.Context, "ad.logger", log)
	return RequestContext{
		Context: ctx,
		Log:     log,
	}
}

func (c RequestContext) LogWithFields(fields logrus.Fields) RequestContext {
	return c.ReplaceLogger(c.Log.WithFields(fields))
}

func (c RequestContext) WithCancel() (RequestContext, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	return RequestContext{
		Context: ctx,
		Log:     c.Log,
	}, cancel
}
