package iso8583

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/moov-io/iso8583"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/ledger/models"
)

// Authorizer is what the server needs from the authorization engine.
type Authorizer interface {
	AuthorizeByNumber(ctx context.Context, number string, amount decimal.Decimal) (*models.Transaction, error)
	Capture(ctx context.Context, transactionID int64) (*models.Transaction, error)
}

// Server accepts ISO 8583 authorization requests (0100) and capture advices
// (0220) over TCP. Frames carry a 2-byte big-endian length header. DE4
// amounts are minor units; approved authorizations echo the transaction id in
// DE37 so a later capture advice can reference it.
type Server struct {
	Addr string

	logger *slog.Logger
	addr   string
	ledger Authorizer

	ln     net.Listener
	wg     sync.WaitGroup
	closed chan struct{}
}

func NewServer(logger *slog.Logger, addr string, ledger Authorizer) *Server {
	return &Server{
		logger: logger.With(slog.String("component", "iso8583")),
		addr:   addr,
		ledger: ledger,
		closed: make(chan struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	s.ln = ln
	s.Addr = ln.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))
		s.acceptLoop()
	}()

	return nil
}

func (s *Server) Close() error {
	close(s.closed)
	err := s.ln.Close()
	s.wg.Wait()
	s.logger.Info("iso8583 server stopped")
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.logger.Error("accepting connection", "err", err)
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	for {
		packed, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Error("reading message", "err", err)
			}
			return
		}

		message := iso8583.NewMessage(Spec)
		if err := message.Unpack(packed); err != nil {
			s.logger.Error("unpacking message", "err", err)
			return
		}

		response, err := s.handleMessage(message)
		if err != nil {
			s.logger.Error("handling message", "err", err)
			return
		}

		if err := writeFrame(conn, response); err != nil {
			s.logger.Error("writing response", "err", err)
			return
		}
	}
}

func (s *Server) handleMessage(message *iso8583.Message) ([]byte, error) {
	mti, err := message.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("getting MTI: %w", err)
	}

	switch mti {
	case mtiAuthorizationRequest:
		return s.handleAuthorization(message)
	case mtiCaptureAdvice:
		return s.handleCapture(message)
	default:
		return nil, fmt.Errorf("unsupported MTI %s", mti)
	}
}

func (s *Server) handleAuthorization(message *iso8583.Message) ([]byte, error) {
	pan, err := message.GetString(2)
	if err != nil {
		return nil, fmt.Errorf("getting PAN: %w", err)
	}

	amountRaw, err := message.GetString(4)
	if err != nil {
		return nil, fmt.Errorf("getting amount: %w", err)
	}
	minor, err := strconv.ParseInt(amountRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amountRaw, err)
	}
	amount := decimal.New(minor, -2)

	response := iso8583.NewMessage(Spec)
	response.MTI(mtiAuthorizationResponse)
	response.Field(2, pan)
	response.Field(4, amountRaw)
	if stan, err := message.GetString(11); err == nil && stan != "" {
		response.Field(11, stan)
	}

	transaction, err := s.ledger.AuthorizeByNumber(context.Background(), pan, amount)
	switch {
	case err == nil:
		response.Field(37, fmt.Sprintf("%012d", transaction.ID))
		response.Field(39, responseApproved)
	case errors.Is(err, models.ErrInsufficientFunds):
		response.Field(39, responseInsufficientFunds)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidAmount):
		response.Field(39, responseInvalidCard)
	default:
		s.logger.Error("authorizing", "err", err)
		response.Field(39, responseSystemError)
	}

	return response.Pack()
}

func (s *Server) handleCapture(message *iso8583.Message) ([]byte, error) {
	rrn, err := message.GetString(37)
	if err != nil {
		return nil, fmt.Errorf("getting retrieval reference number: %w", err)
	}
	transactionID, err := strconv.ParseInt(strings.TrimSpace(rrn), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing retrieval reference number %q: %w", rrn, err)
	}

	response := iso8583.NewMessage(Spec)
	response.MTI(mtiCaptureResponse)
	response.Field(37, rrn)

	_, err = s.ledger.Capture(context.Background(), transactionID)
	switch {
	case err == nil:
		response.Field(39, responseApproved)
	case errors.Is(err, models.ErrNotFound):
		response.Field(39, responseUnableToLocate)
	case errors.Is(err, models.ErrInvalidState):
		response.Field(39, responseInvalidState)
	default:
		s.logger.Error("capturing", "err", err)
		response.Field(39, responseSystemError)
	}

	return response.Pack()
}

func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}

	packed := make([]byte, binary.BigEndian.Uint16(header))
	if _, err := io.ReadFull(conn, packed); err != nil {
		return nil, err
	}
	return packed, nil
}

func writeFrame(conn net.Conn, packed []byte) error {
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(len(packed)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(packed)
	return err
}
