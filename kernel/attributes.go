package kernel

import "context"

// expose declares every remotely accessible attribute of the kernel.
func (k *Kernel) expose() error {
	kern := k.gateway.Owner("kernel")
	if err := kern.ReadOnly("session", func() any { return k.session.ID() }); err != nil {
		return err
	}
	if err := kern.ReadOnly("identity", func() any { return k.heartbeat.Identity() }); err != nil {
		return err
	}

	if err := k.engine.Expose(k.gateway.Owner("engine")); err != nil {
		return err
	}

	hist := k.gateway.Owner("history")
	if err := hist.ReadOnly("session", func() any { return k.store.Session() }); err != nil {
		return err
	}
	if err := hist.ReadOnly("length", func() any {
		n, err := k.store.Len(context.Background())
		if err != nil {
			return 0
		}
		return n
	}); err != nil {
		return err
	}

	return k.gateway.Owner("router").ReadOnly("metrics", func() any { return k.router.Metrics() })
}
