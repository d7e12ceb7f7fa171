package services

import (
	"log"
	"net/http"
	"os"
	"time"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/sync"
	"school_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Backoffice aggregates every service of the administration backend behind a
// single router.
type Backoffice struct {
	session     SessionService
	people      PeopleService
	academics   AcademicsService
	lessons     LessonService
	assessments AssessmentService
	attendance  AttendanceService
	noticeboard NoticeboardService
	lookup      LookupService

	db *gorm.DB
}

func NewBackoffice(db *gorm.DB, userAuth auth.IdentityProvider) Backoffice {
	synchronizer := sync.NewSynchronizer(db, userAuth)

	return Backoffice{
		session:     SessionService{db: db, userAuth: userAuth},
		people:      PeopleService{db: db, sync: synchronizer, userAuth: userAuth},
		academics:   AcademicsService{db: db, userAuth: userAuth},
		lessons:     LessonService{db: db, userAuth: userAuth, now: time.Now},
		assessments: AssessmentService{db: db, userAuth: userAuth},
		attendance:  AttendanceService{db: db, userAuth: userAuth},
		noticeboard: NoticeboardService{db: db, userAuth: userAuth},
		lookup:      LookupService{db: db, userAuth: userAuth},
		db:          db,
	}
}

func (b *Backoffice) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/session", b.session.Routes())
	r.Mount("/people", b.people.Routes())
	r.Mount("/academics", b.academics.Routes())
	r.Mount("/lessons", b.lessons.Routes())
	r.Mount("/assessments", b.assessments.Routes())
	r.Mount("/attendance", b.attendance.Routes())
	r.Mount("/noticeboard", b.noticeboard.Routes())
	r.Mount("/lookup", b.lookup.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
