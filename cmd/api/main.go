package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studentportal/internal/attendance"
	"studentportal/internal/auth"
	"studentportal/internal/cloudinary"
	"studentportal/internal/config"
	"studentportal/internal/credential"
	"studentportal/internal/facegallery"
	"studentportal/internal/httpmiddleware"
	"studentportal/internal/queue"
	"studentportal/internal/recognition"
	"studentportal/internal/registry"
	"studentportal/internal/store"
)

var (
	marksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_attendance_marks_total",
		Help: "Attendance mark attempts by method and result.",
	}, []string{"method", "result"})

	recognitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_recognitions_total",
		Help: "Face recognition outcomes.",
	}, []string{"outcome"})
)

// auditEvent is the queue payload consumed by the worker.
type auditEvent struct {
	RecordID string   `json:"record_id"`
	MarkType string   `json:"mark_type"`
	Method   string   `json:"method"`
	Distance *float64 `json:"distance,omitempty"`
}

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "portal:attendance")
	}

	creds := credential.NewStore(db.Client, cfg.EmailDomain)
	reg := registry.New(db.Client)
	ledger := attendance.NewLedger(attendance.NewRepository(db.Client))

	gallery, err := facegallery.Load(cfg.FaceGalleryPath, cfg.FaceTolerance)
	if err != nil {
		return err
	}

	var detector recognition.Detector
	if cfg.FaceSkip {
		detector = recognition.SkipDetector{}
		log.Println("FACE_SKIP enabled, using canned face detections")
	} else {
		detector, err = recognition.NewDlibDetector(cfg.FaceModelsDir)
		if err != nil {
			return err
		}
	}
	defer detector.Close()
	pipeline := recognition.New(detector, gallery)

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	publishAudit := func(ctx context.Context, evt auditEvent) {
		body, err := json.Marshal(evt)
		if err != nil {
			return
		}
		if err := q.Publish(ctx, queue.Message{Type: "attendance", Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy, "faces": gallery.Size()})
	})

	r.POST("/v1/auth/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
			Name     string `json:"name" binding:"required"`
			Email    string `json:"email" binding:"required"`
			Course   string `json:"course" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ok, msg, err := creds.SubmitRegistration(c.Request.Context(), req.Username, req.Password, req.Name, req.Email, req.Course)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": msg})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		acc, err := creds.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if acc == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		role := auth.RoleStudent
		if acc.IsAdmin {
			role = auth.RoleAdmin
		}
		tokens, err := auth.Issue(acc.ID, acc.Username, role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          role,
		})
	})

	authGroup := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	admin := authGroup.Group("/admin", auth.AdminOnly())

	admin.GET("/registrations", func(c *gin.Context) {
		pending, err := creds.PendingRegistrations(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"registrations": pending})
	})

	admin.POST("/registrations/:id/approve", func(c *gin.Context) {
		ok, err := creds.ApproveRegistration(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "registration approved"})
	})

	admin.GET("/courses", func(c *gin.Context) {
		courses, err := reg.ListCourses(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": courses})
	})

	admin.POST("/courses", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ok, err := reg.AddCourse(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusConflict, gin.H{"error": "course already exists"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "course added"})
	})

	admin.DELETE("/courses/:name", func(c *gin.Context) {
		if err := reg.DeleteCourse(c.Request.Context(), c.Param("name")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "course deleted"})
	})

	admin.GET("/students", func(c *gin.Context) {
		course := c.Query("course")
		students, err := reg.SearchStudents(c.Request.Context(), c.Query("q"), course)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	admin.DELETE("/students/:id", func(c *gin.Context) {
		if err := reg.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "student deleted"})
	})

	admin.GET("/attendance", func(c *gin.Context) {
		course := c.Query("course")
		date := c.Query("date")
		if course == "" || date == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course and date query params required"})
			return
		}
		courseID, err := reg.CourseID(c.Request.Context(), course)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if courseID == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown course"})
			return
		}
		rows, err := ledger.ByCourseDate(c.Request.Context(), courseID, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": rows})
	})

	admin.GET("/attendance/overview", func(c *gin.Context) {
		rows, err := ledger.Overview(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": rows})
	})

	// Train faces: enroll a captured image under a student's name.
	admin.POST("/faces/enroll", func(c *gin.Context) {
		studentID := c.PostForm("student_id")
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id field required"})
			return
		}
		student, err := reg.GetByID(c.Request.Context(), studentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		img, ok := readImageFile(c)
		if !ok {
			return
		}
		enrolled, err := pipeline.EnrollFrom(c.Request.Context(), img, student.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !enrolled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No face detected in the image. Please try again."})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":     "face enrolled for " + student.Name,
			"known_faces": gallery.Names(),
		})
	})

	me := authGroup.Group("/me")

	me.GET("/profile", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		student, err := reg.GetByAccount(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"profile": student})
	})

	me.PUT("/profile", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			Name         string `json:"name" binding:"required"`
			Email        string `json:"email" binding:"required"`
			Course       string `json:"course" binding:"required"`
			StudentID    string `json:"student_id"`
			RegisterNo   string `json:"register_no"`
			AcademicYear string `json:"academic_year"`
			ResumePath   string `json:"resume_path"`
			PhotoPath    string `json:"photo_path"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		existing, err := reg.GetByAccount(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile"})
			return
		}
		// Omitted file references keep their current values.
		if req.ResumePath == "" {
			req.ResumePath = existing.ResumePath
		}
		if req.PhotoPath == "" {
			req.PhotoPath = existing.PhotoPath
		}
		err = reg.UpdateProfile(c.Request.Context(), claims.Subject, registry.StudentProfile{
			Name:         req.Name,
			Email:        req.Email,
			Course:       req.Course,
			StudentID:    req.StudentID,
			RegisterNo:   req.RegisterNo,
			AcademicYear: req.AcademicYear,
			ResumePath:   req.ResumePath,
			PhotoPath:    req.PhotoPath,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "profile updated"})
	})

	// Upload endpoint — resumes and photos go to Cloudinary; the returned
	// URL is what the profile stores as its file reference.
	me.POST("/uploads", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
			return
		}
		kind := c.PostForm("kind")
		if kind != "resume" && kind != "photo" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be resume or photo"})
			return
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}

		var result *cloudinary.UploadResult
		if kind == "resume" {
			result, err = cdnClient.UploadResume(data, header.Filename)
		} else {
			result, err = cdnClient.UploadPhoto(data, header.Filename)
		}
		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "file upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"url":       result.SecureURL,
			"public_id": result.PublicID,
			"bytes":     result.Bytes,
		})
	})

	me.GET("/courses", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		courses, err := reg.CoursesOf(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": courses})
	})

	me.POST("/attendance", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			Course string `json:"course" binding:"required"`
			Type   string `json:"type" binding:"required"`
			Time   string `json:"time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		student, courseID, ok := resolveMark(c, reg, claims.Subject, req.Course)
		if !ok {
			return
		}
		res, err := ledger.Mark(c.Request.Context(), student.ID, courseID, req.Type, "", req.Time)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance mark failed"})
			return
		}
		if !res.OK {
			marksTotal.WithLabelValues("manual", "rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": res.Message})
			return
		}
		marksTotal.WithLabelValues("manual", "ok").Inc()
		publishAudit(ctx, auditEvent{RecordID: res.RecordID, MarkType: req.Type, Method: "manual"})
		c.JSON(http.StatusOK, gin.H{"message": res.Message})
	})

	// Facial-recognition mark: the captured face must match the acting
	// student before the ledger is touched.
	me.POST("/attendance/face", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		course := c.PostForm("course")
		markType := c.PostForm("type")
		if course == "" || markType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course and type fields required"})
			return
		}
		student, courseID, ok := resolveMark(c, reg, claims.Subject, course)
		if !ok {
			return
		}
		img, ok := readImageFile(c)
		if !ok {
			return
		}

		matches, err := pipeline.Recognize(c.Request.Context(), img)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(matches) == 0 {
			recognitionsTotal.WithLabelValues("no_face").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "No face detected in the image. Please try again."})
			return
		}
		first := matches[0]
		if !first.Matched || first.Label != student.Name {
			recognitionsTotal.WithLabelValues("unmatched").Inc()
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Face not recognized. Please try again or contact an administrator.",
				"faces": matches,
			})
			return
		}
		recognitionsTotal.WithLabelValues("matched").Inc()

		res, err := ledger.Mark(c.Request.Context(), student.ID, courseID, markType, "", "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance mark failed"})
			return
		}
		if !res.OK {
			marksTotal.WithLabelValues("face", "rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": res.Message, "faces": matches})
			return
		}
		marksTotal.WithLabelValues("face", "ok").Inc()
		dist := first.Distance
		publishAudit(ctx, auditEvent{RecordID: res.RecordID, MarkType: markType, Method: "face", Distance: &dist})
		c.JSON(http.StatusOK, gin.H{"message": res.Message, "faces": matches})
	})

	me.GET("/attendance", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		course := c.Query("course")
		if course == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course query param required"})
			return
		}
		student, courseID, ok := resolveMark(c, reg, claims.Subject, course)
		if !ok {
			return
		}
		entries, err := ledger.History(c.Request.Context(), student.ID, courseID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": entries})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// resolveMark loads the acting student's profile and checks the course is
// one of theirs. Writes the error response itself when something is off.
func resolveMark(c *gin.Context, reg *registry.Registry, accountID, course string) (*registry.StudentProfile, string, bool) {
	student, err := reg.GetByAccount(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, "", false
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no profile"})
		return nil, "", false
	}
	if student.Course != course {
		c.JSON(http.StatusForbidden, gin.H{"error": "not enrolled in this course"})
		return nil, "", false
	}
	courseID, err := reg.CourseID(c.Request.Context(), course)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, "", false
	}
	if courseID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown course"})
		return nil, "", false
	}
	return student, courseID, true
}

// readImageFile pulls the multipart "image" file from the request.
func readImageFile(c *gin.Context) ([]byte, bool) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image field required"})
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return nil, false
	}
	return data, true
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
