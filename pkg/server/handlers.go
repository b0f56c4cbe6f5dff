package server

import (
	"net/http"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		h, err := sess.Open(r.Context(), req.ObjectID, req.Mode)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, OpenResponse{Handle: h})
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req HandleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		if err := sess.Close(r.Context(), req.Handle); err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Length < 0 {
		s.respondError(w, http.StatusBadRequest, "negative length")
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		data, err := sess.Read(r.Context(), req.Handle, req.Length)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, ReadResponse{Data: data})
	})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req WriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		n, err := sess.Write(r.Context(), req.Handle, req.Data)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, WriteResponse{Written: n})
	})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		pos, err := sess.Seek(req.Handle, req.Offset, req.Whence)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, PositionResponse{Position: pos})
	})
}

func (s *Server) handleTell(w http.ResponseWriter, r *http.Request) {
	var req HandleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		pos, err := sess.Tell(req.Handle)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, PositionResponse{Position: pos})
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Mode == 0 {
		req.Mode = lob.ModeReadWrite
	}
	s.withSession(w, r, func(sess *lob.Session) {
		id, err := sess.Create(r.Context(), req.Mode)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, ObjectResponse{ObjectID: id})
	})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	var req UnlinkRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		if err := sess.Unlink(r.Context(), req.ObjectID); err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		id, err := sess.Import(r.Context(), req.Path)
		if err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, ObjectResponse{ObjectID: id})
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *lob.Session) {
		if err := sess.Export(r.Context(), req.ObjectID, req.Path); err != nil {
			s.respondLobError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
