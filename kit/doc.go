// Package kit assembles every coordkit primitive from one Config over one
// shared Redis client.
//
//	var cfg kit.Config
//	if err := config.LoadConfig("checkout", &cfg); err != nil { ... }
//	k, err := kit.New(&cfg)
//	if err := k.Start(ctx); err != nil { ... }
//	defer k.Stop(context.Background())
//
//	allowed, remaining, err := k.Limiter.IsAllowed(ctx, "ip:1.2.3.4", 100, time.Minute)
//	err = k.Locks.WithLock(ctx, "invoice:42", 30*time.Second, settle)
//	err = k.Policy("payments").Execute(ctx, charge)
//
// Store-backed primitives (Sessions, OTP, Locks, Limiter and caches from
// NewCache) exist only between Start and Stop.
package kit
