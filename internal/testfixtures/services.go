package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/lab-portal/internal/adapters"
	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/importer"
	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/recurrence"
)

// ServiceFactory builds application services over one store with a shared
// deterministic clock and identifier sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Publisher   notify.Publisher
	Logger      *slog.Logger

	repos adapters.Repositories
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory wires services to store. Events go nowhere unless
// WithPublisher is given.
func NewServiceFactory(store persistence.Store, opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Publisher:   notify.Fanout{},
		repos:       adapters.New(store),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithPublisher routes service events to publisher.
func WithPublisher(publisher notify.Publisher) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Publisher = publisher
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Repositories exposes the adapted store.
func (f *ServiceFactory) Repositories() adapters.Repositories {
	return f.repos
}

// NewLabService builds a lab service.
func (f *ServiceFactory) NewLabService() *application.LabService {
	return application.NewLabServiceWithLogger(
		f.repos.Labs,
		f.repos.Reservations,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewEquipmentService builds an equipment service.
func (f *ServiceFactory) NewEquipmentService() *application.EquipmentService {
	return application.NewEquipmentServiceWithLogger(
		f.repos.Equipment,
		f.repos.Labs,
		f.repos.Inventory,
		f.Publisher,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewReservationService builds a reservation service in the given mode.
func (f *ServiceFactory) NewReservationService(mode application.BookingMode) *application.ReservationService {
	return application.NewReservationServiceWithLogger(
		f.repos.Reservations,
		f.repos.Labs,
		f.Publisher,
		application.ReservationServiceConfig{Mode: mode},
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewImportService builds an import service using the default mapping in UTC.
func (f *ServiceFactory) NewImportService() *application.ImportService {
	reconciler := importer.NewReconciler(importer.DefaultMapping(), recurrence.NewEngine(time.UTC), 0)
	return application.NewImportServiceWithLogger(
		f.repos.Reservations,
		f.repos.Labs,
		reconciler,
		f.Publisher,
		application.DefaultPreviewTTL,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}
