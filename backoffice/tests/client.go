package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"school_platform/backoffice/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo

	// expectStatus overrides the default 200 check, used to assert error
	// responses.
	expectStatus int
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:          api,
		method:       method,
		endpoint:     endpoint,
		expectStatus: http.StatusOK,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(username, password string) *httpTestRequest {
	r.login = &loginInfo{Username: username, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

func (r *httpTestRequest) ExpectStatus(code int) *httpTestRequest {
	r.expectStatus = code
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Username, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != r.expectStatus {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil && r.expectStatus == http.StatusOK {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api       chi.Router
	authToken string
	callerId  uuid.UUID
	role      string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Username string
	Password string
}

type loginResult struct {
	CallerId    uuid.UUID `json:"caller_id"`
	Role        string    `json:"role"`
	AccessToken string    `json:"access_token"`
}

func (c *client) login(username, password string) error {
	var res loginResult
	err := c.Get("/session/login").Login(username, password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AccessToken
	c.callerId = res.CallerId
	c.role = res.Role

	return nil
}

type page[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

func (c *client) createTeacher(body map[string]interface{}) (schema.Teacher, error) {
	var res schema.Teacher
	err := c.Post("/people/teachers").Json(body).Do(&res)
	return res, err
}

func (c *client) getTeacher(id uuid.UUID) (schema.Teacher, error) {
	var res schema.Teacher
	err := c.Get(fmt.Sprintf("/people/teachers/%v", id)).Do(&res)
	return res, err
}

func (c *client) listTeachers() (page[schema.Teacher], error) {
	var res page[schema.Teacher]
	err := c.Get("/people/teachers").Do(&res)
	return res, err
}

func (c *client) createStudent(body map[string]interface{}) (schema.Student, error) {
	var res schema.Student
	err := c.Post("/people/students").Json(body).Do(&res)
	return res, err
}

func (c *client) listStudents(query string) (page[schema.Student], error) {
	var res page[schema.Student]
	err := c.Get("/people/students" + query).Do(&res)
	return res, err
}

func (c *client) createParent(body map[string]interface{}) (schema.Parent, error) {
	var res schema.Parent
	err := c.Post("/people/parents").Json(body).Do(&res)
	return res, err
}

func (c *client) createLesson(body map[string]interface{}) (schema.Lesson, error) {
	var res schema.Lesson
	err := c.Post("/lessons").Json(body).Do(&res)
	return res, err
}

func (c *client) schedule(query string) ([]schema.Lesson, error) {
	var res []schema.Lesson
	err := c.Get("/lessons/schedule" + query).Do(&res)
	return res, err
}

func (c *client) recordAttendance(body map[string]interface{}) (schema.Attendance, error) {
	var res schema.Attendance
	err := c.Post("/attendance").Json(body).Do(&res)
	return res, err
}

func (c *client) listAttendance(query string) (page[schema.Attendance], error) {
	var res page[schema.Attendance]
	err := c.Get("/attendance" + query).Do(&res)
	return res, err
}
