package trap

import (
	"context"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/parseengine"
	"github.com/nocalert/core/internal/store"
)

// Listener is the UDP/162 trap ingestor from §4.5. Datagrams are
// decoded and handed to the parse engine and the alert engine; a
// malformed datagram is dropped with a counter increment, never a
// reply (traps are fire-and-forget, not a request/response protocol).
type Listener struct {
	registry *addons.Registry
	engine   *alertengine.Engine
	mibs     *store.MIBRepo
	conn     *net.UDPConn

	metricsOnce sync.Once
	received    prometheus.Counter
	processed   prometheus.Counter
	dropped     prometheus.Counter
	errors      prometheus.Counter
}

// NewListener constructs a Listener bound to the given registry/engine.
func NewListener(registry *addons.Registry, engine *alertengine.Engine) *Listener {
	l := &Listener{registry: registry, engine: engine}
	l.initMetrics()
	return l
}

// WithMIBs enables friendly-name resolution for varbind OIDs the addon's
// own varbind_mappings doesn't cover. Optional; a nil mibs leaves
// resolution disabled.
func (l *Listener) WithMIBs(mibs *store.MIBRepo) *Listener {
	l.mibs = mibs
	return l
}

func (l *Listener) initMetrics() {
	l.metricsOnce.Do(func() {
		l.received = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nocalert", Subsystem: "trap", Name: "traps_received_total",
		})
		l.processed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nocalert", Subsystem: "trap", Name: "traps_processed_total",
		})
		l.dropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nocalert", Subsystem: "trap", Name: "traps_dropped_total",
		})
		l.errors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nocalert", Subsystem: "trap", Name: "errors_total",
		})
		prometheus.MustRegister(l.received, l.processed, l.dropped, l.errors)
	})
}

// ListenAndServe opens the UDP socket and serves until ctx is
// cancelled. addr is typically ":162" (or a higher port in dev, since
// 162 requires CAP_NET_BIND_SERVICE).
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("trap: read error")
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go l.handle(ctx, datagram, src.IP.String())
	}
}

func (l *Listener) handle(ctx context.Context, datagram []byte, sourceIP string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("trap: handler panic recovered")
			l.errors.Inc()
		}
	}()

	l.received.Inc()

	decoded, err := Decode(datagram)
	if err != nil {
		log.Debug().Err(err).Str("source_ip", sourceIP).Msg("trap: dropping malformed datagram")
		l.dropped.Inc()
		return
	}

	addon := l.registry.FindByOID(decoded.EnterpriseOID)
	if addon == nil {
		addon = l.registry.FindByOID(decoded.TrapOID)
	}
	if addon == nil || addon.SNMPTrap == nil {
		l.dropped.Inc()
		return
	}

	isClear := false
	for _, def := range addon.SNMPTrap.TrapDefinitions {
		if def.ClearOID != "" && def.ClearOID == decoded.TrapOID {
			isClear = true
			break
		}
	}

	varbinds := make(map[string]string, len(decoded.Varbinds))
	for oid, v := range decoded.Varbinds {
		varbinds[oid] = v
	}

	input := parseengine.SNMPInput{
		SourceIP:      sourceIP,
		TrapOID:       decoded.TrapOID,
		EnterpriseOID: decoded.EnterpriseOID,
		Varbinds:      varbinds,
		IsClear:       isClear,
		OIDNames:      l.resolveOIDNames(ctx, addon, varbinds),
	}

	parsed, err := parseengine.Parse(input, addon, addon.ID)
	if err != nil {
		log.Warn().Err(err).Str("addon_id", addon.ID).Msg("trap: parse error")
		l.errors.Inc()
		return
	}
	if parsed == nil {
		l.dropped.Inc()
		return
	}

	if _, err := l.engine.Process(ctx, parsed, addon); err != nil {
		log.Error().Err(err).Str("addon_id", addon.ID).Msg("trap: engine process failed")
		l.errors.Inc()
		return
	}
	l.processed.Inc()
}

// resolveOIDNames looks up a friendly name for each varbind OID the
// addon's own mappings don't already cover. Best-effort: a lookup
// failure just leaves that OID unresolved.
func (l *Listener) resolveOIDNames(ctx context.Context, addon *models.Manifest, varbinds map[string]string) map[string]string {
	if l.mibs == nil {
		return nil
	}
	mapped := addon.SNMPTrap.VarbindMappings
	if mapped == nil {
		mapped = addon.Parser.VarbindMappings
	}

	var names map[string]string
	for oid := range varbinds {
		if _, ok := mapped[oid]; ok {
			continue
		}
		name, ok, err := l.mibs.Lookup(ctx, oid)
		if err != nil || !ok {
			continue
		}
		if names == nil {
			names = make(map[string]string)
		}
		names[oid] = name
	}
	return names
}

// Close releases the UDP socket, if open.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
