package stream

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestState_Defaults(t *testing.T) {
	s := NewState("rtsp://cam/1")
	address, running := s.Read()
	if address != "rtsp://cam/1" || !running {
		t.Errorf("got (%q, %v)", address, running)
	}

	s.SetSource("")
	if s.Address() != "" {
		t.Error("empty address must be accepted")
	}

	s.Stop()
	if _, running := s.Read(); running {
		t.Error("Stop should clear running")
	}
}

func TestState_NoTornReads(t *testing.T) {
	// Long, distinct values make a torn read visible as a mixed string
	values := make(map[string]bool)
	var written []string
	for i := 0; i < 8; i++ {
		v := strings.Repeat(fmt.Sprintf("cam%d-", i), 64)
		values[v] = true
		written = append(written, v)
	}
	values[""] = true
	written = append(written, "")

	s := NewState(written[0])
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				s.SetSource(written[(i+w)%len(written)])
			}
		}(w)
	}

	errs := make(chan string, 1)
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 20000; i++ {
				address, _ := s.Read()
				if !values[address] {
					select {
					case errs <- address:
					default:
					}
					return
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	wg.Wait()

	select {
	case bad := <-errs:
		t.Fatalf("read a value that was never written: %q", bad)
	default:
	}
}
