package web

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fjulian79/libfds/common"
	"github.com/fjulian79/libfds/storage"
)

// InfoResponse is a json-marked-up structure for the info handler
type InfoResponse struct {
	AppName string        `json:"app_name"`
	Store   *storage.Info `json:"store"`
}

// RecordResponse carries a record payload as a hex string
type RecordResponse struct {
	UID  int    `json:"uid"`
	Size int    `json:"size"`
	Data string `json:"data"`
}

type incomingRecord struct {
	Data string `json:"data"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func uidFromRequest(r *http.Request) (int, error) {
	vars := mux.Vars(r)
	uid, err := strconv.Atoi(vars["uid"])
	if err != nil {
		return 0, common.NewHTTPError(http.StatusBadRequest, "invalid uid '%s'", vars["uid"])
	}
	return uid, nil
}

// storeError maps classified store errors to http response codes
func storeError(err error) error {
	code := http.StatusInternalServerError
	if errors.Is(err, storage.ErrInval) || errors.Is(err, storage.ErrSize) {
		code = http.StatusBadRequest
	}
	return common.NewHTTPError(code, "%s", err)
}

func (s *Server) appInfo(r *http.Request) (interface{}, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.store.Info()
	if err != nil {
		return nil, storeError(err)
	}
	return &InfoResponse{
		AppName: "fdsserver",
		Store:   info,
	}, nil
}

func (s *Server) getRecord(r *http.Request) (interface{}, error) {
	uid, err := uidFromRequest(r)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	buf := make([]byte, s.maxPayload)
	n := s.store.Read(uid, buf)
	if n == 0 {
		return nil, common.NewHTTPError(http.StatusNotFound, "no data for uid %d", uid)
	}
	return &RecordResponse{
		UID:  uid,
		Size: n,
		Data: hex.EncodeToString(buf[:n]),
	}, nil
}

func (s *Server) setRecord(r *http.Request) (interface{}, error) {
	uid, err := uidFromRequest(r)
	if err != nil {
		return nil, err
	}

	content, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return nil, common.NewHTTPError(http.StatusBadRequest, "error reading request body: %s", err)
	}
	var input incomingRecord
	err = json.Unmarshal(content, &input)
	if err != nil {
		return nil, common.NewHTTPError(http.StatusBadRequest, "error parsing request body: %s", err)
	}
	data, err := hex.DecodeString(input.Data)
	if err != nil {
		return nil, common.NewHTTPError(http.StatusBadRequest, "data is not a valid hex string: %s", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	err = s.store.Write(uid, data)
	if err != nil {
		return nil, storeError(err)
	}
	return &RecordResponse{UID: uid, Size: len(data), Data: input.Data}, nil
}

func (s *Server) delRecord(r *http.Request) (interface{}, error) {
	uid, err := uidFromRequest(r)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	err = s.store.Delete(uid)
	if err != nil {
		return nil, storeError(err)
	}
	return &statusResponse{Status: "deleted"}, nil
}

func (s *Server) formatStore(r *http.Request) (interface{}, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	err := s.store.Format()
	if err != nil {
		return nil, storeError(err)
	}
	return &statusResponse{Status: "formatted"}, nil
}
