package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers bundles the route handlers for registration.
type Handlers struct {
	ClassYears *ClassYearHandler
	Students   *StudentHandler
	Teachers   *TeacherHandler
	Subjects   *SubjectHandler
	Grades     *GradeHandler
}

// RegisterRoutes mounts every API route on the given group.
func RegisterRoutes(api *gin.RouterGroup, h Handlers) {
	classYears := api.Group("/class-years")
	{
		classYears.POST("", h.ClassYears.Create)
		classYears.GET("/:id", h.ClassYears.Get)
		classYears.PATCH("/:id", h.ClassYears.Patch)
		classYears.DELETE("/:id", h.ClassYears.Delete)
		classYears.GET("/:id/subjects", h.ClassYears.ListSubjects)
	}

	students := api.Group("/students")
	{
		students.POST("", h.Students.Create)
		students.GET("/with-grade-f", h.Students.WithGradeF)
		students.GET("/count", h.Students.Count)
		students.GET("/:id", h.Students.Get)
		students.PATCH("/:id", h.Students.Patch)
		students.DELETE("/:id", h.Students.Delete)
		students.GET("/:id/subjects/:subjectId/average", h.Grades.Average)
	}

	teachers := api.Group("/teachers")
	{
		teachers.GET("", h.Teachers.List)
		teachers.POST("", h.Teachers.Create)
		teachers.GET("/:id", h.Teachers.Get)
		teachers.PATCH("/:id", h.Teachers.Patch)
		teachers.DELETE("/:id", h.Teachers.Delete)
		teachers.GET("/:id/subjects", h.Teachers.Subjects)
	}

	subjects := api.Group("/subjects")
	{
		subjects.POST("", h.Subjects.Create)
		subjects.GET("/:id", h.Subjects.Get)
		subjects.PUT("/:id/teacher", h.Subjects.UpdateTeacher)
		subjects.DELETE("/:id", h.Subjects.Delete)
	}

	grades := api.Group("/grades")
	{
		grades.POST("", h.Grades.Create)
		grades.GET("/search", h.Grades.Search)
		grades.GET("/:id", h.Grades.Get)
		grades.PATCH("/:id", h.Grades.Patch)
		grades.DELETE("/:id", h.Grades.Delete)
	}
}
